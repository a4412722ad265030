// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordCacheHit(3)
	m.RecordCacheMiss(1)
	m.RecordCacheFault("get")
	m.RecordCacheSave()
	m.GenerationStarted()
	m.RecordShared()
	m.RecordBatch(4, 3, 1)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "kbsearch_cache_hits_total")
	assert.Contains(t, names, "kbsearch_cache_faults_total")
	assert.Contains(t, names, "kbsearch_coalescer_generation_calls_total")
	assert.Contains(t, names, "kbsearch_coalescer_pending")
	assert.Contains(t, names, "kbsearch_batch_hit_rate")

	_, err = New(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestRecording(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.RecordCacheHit(2)
	m.RecordCacheHit(0)
	m.RecordCacheMiss(5)
	m.RecordCacheFault("prefetch")
	m.RecordCacheFault("prefetch")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.cacheMisses))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheFaults.WithLabelValues("prefetch")))

	m.GenerationStarted()
	m.GenerationStarted()
	m.GenerationSettled()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.generationCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pending))

	m.RecordBatch(10, 7, 3)
	m.RecordBatch(0, 0, 0)
	assert.Equal(t, 10.0, testutil.ToFloat64(m.batchTexts))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.batchHits))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.batchMisses))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCacheHit(1)
		m.RecordCacheMiss(1)
		m.RecordCacheFault("save")
		m.RecordCacheSave()
		m.GenerationStarted()
		m.GenerationSettled()
		m.RecordShared()
		m.RecordBatch(1, 1, 0)
	})
}
