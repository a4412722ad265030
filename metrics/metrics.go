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

// Package metrics holds the Prometheus collectors for the embedding cache,
// the request coalescer and the batch processor.
//
// All recording methods are safe to call on a nil *Metrics, which is how
// components run with metrics disabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kbsearch"

// Metrics groups every collector exported by the pipeline.
type Metrics struct {
	// Embedding cache
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheFaults *prometheus.CounterVec // By operation (get/prefetch/save)
	cacheSaves  prometheus.Counter

	// Request coalescer
	generationCalls prometheus.Counter
	sharedCalls     prometheus.Counter
	pending         prometheus.Gauge

	// Batch processor
	batchTexts   prometheus.Counter
	batchHits    prometheus.Counter
	batchMisses  prometheus.Counter
	batchHitRate prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors, which is useful in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Embedding cache lookups that returned a stored vector",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Embedding cache lookups that found nothing",
		}),
		cacheFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "faults_total",
			Help:      "Cache store failures absorbed by the embedding cache",
		}, []string{"operation"}),
		cacheSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "saves_total",
			Help:      "Embeddings written to the cache store",
		}),

		generationCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coalescer",
			Name:      "generation_calls_total",
			Help:      "Embedding generation calls actually made after deduplication",
		}),
		sharedCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coalescer",
			Name:      "shared_total",
			Help:      "Callers that joined an in-flight generation instead of starting one",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coalescer",
			Name:      "pending",
			Help:      "Generation calls currently in flight",
		}),

		batchTexts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "texts_total",
			Help:      "Texts submitted to the batch processor",
		}),
		batchHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "hits_total",
			Help:      "Batch positions served from the cache prefetch",
		}),
		batchMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "misses_total",
			Help:      "Batch positions that needed generation",
		}),
		batchHitRate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "hit_rate",
			Help:      "Per-batch cache hit rate",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.cacheHits, m.cacheMisses, m.cacheFaults, m.cacheSaves,
		m.generationCalls, m.sharedCalls, m.pending,
		m.batchTexts, m.batchHits, m.batchMisses, m.batchHitRate,
	}
}

// RecordCacheHit counts n cache hits.
func (m *Metrics) RecordCacheHit(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheHits.Add(float64(n))
}

// RecordCacheMiss counts n cache misses.
func (m *Metrics) RecordCacheMiss(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheMisses.Add(float64(n))
}

// RecordCacheFault counts a store failure for the named operation.
func (m *Metrics) RecordCacheFault(operation string) {
	if m == nil {
		return
	}
	m.cacheFaults.WithLabelValues(operation).Inc()
}

// RecordCacheSave counts a successful save.
func (m *Metrics) RecordCacheSave() {
	if m == nil {
		return
	}
	m.cacheSaves.Inc()
}

// GenerationStarted marks the start of a deduplicated generation call.
func (m *Metrics) GenerationStarted() {
	if m == nil {
		return
	}
	m.generationCalls.Inc()
	m.pending.Inc()
}

// GenerationSettled marks a generation call as finished.
func (m *Metrics) GenerationSettled() {
	if m == nil {
		return
	}
	m.pending.Dec()
}

// RecordShared counts a caller that received another caller's result.
func (m *Metrics) RecordShared() {
	if m == nil {
		return
	}
	m.sharedCalls.Inc()
}

// RecordBatch records the outcome of one processed batch.
func (m *Metrics) RecordBatch(total, hits, misses int) {
	if m == nil || total == 0 {
		return
	}
	m.batchTexts.Add(float64(total))
	m.batchHits.Add(float64(hits))
	m.batchMisses.Add(float64(misses))
	m.batchHitRate.Observe(float64(hits) / float64(total))
}
