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

package reembed

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/kbsearch/batch"
	"github.com/poiesic/kbsearch/coalesce"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/embedcache"
	"github.com/poiesic/kbsearch/storage/badger"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *badger.DocumentRepository {
	t.Helper()
	repo, _, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func newTestProcessor(t *testing.T) *batch.Processor {
	t.Helper()
	repo, cacheStore, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	cache, err := embedcache.New(cacheStore)
	require.NoError(t, err)
	p, err := batch.NewProcessor(cache, coalesce.New())
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

// seed stores n documents without vectors and returns them in ID order.
func seed(t *testing.T, repo *badger.DocumentRepository, n int) []*core.Document {
	t.Helper()
	docs := make([]*core.Document, n)
	for i := range docs {
		docs[i] = &core.Document{Content: fmt.Sprintf("document number %d", i)}
	}
	_, err := repo.AddDocuments(context.Background(), docs...)
	require.NoError(t, err)

	listed, err := repo.ListDocuments(context.Background(), 0, n+1)
	require.NoError(t, err)
	require.Len(t, listed, n)
	return listed
}
