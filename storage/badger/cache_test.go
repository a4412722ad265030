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

package badger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCacheStore(t *testing.T) (*CacheStore, *Backend) {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !backend.IsClosed() {
			backend.Close()
		}
	})
	return NewCacheStore(backend), backend
}

func entry(text, model string, v ...float32) *core.CacheEntry {
	return &core.CacheEntry{
		Hash:      core.HashContent(text),
		Model:     model,
		Embedding: v,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCacheStore_GetMiss(t *testing.T) {
	store, _ := setupCacheStore(t)

	v, found, err := store.Get(context.Background(), core.HashContent("nothing"), "m")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)
}

func TestCacheStore_PutGet(t *testing.T) {
	store, _ := setupCacheStore(t)
	ctx := context.Background()

	e := entry("hello", "m", 0.1, 0.2, 0.3)
	require.NoError(t, store.Put(ctx, e))

	v, found, err := store.Get(ctx, e.Hash, "m")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, e.Embedding, v)

	t.Run("model is part of the key", func(t *testing.T) {
		_, found, err := store.Get(ctx, e.Hash, "other")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestCacheStore_InsertOrIgnore(t *testing.T) {
	store, _ := setupCacheStore(t)
	ctx := context.Background()

	first := entry("same", "m", 1, 1)
	second := entry("same", "m", 2, 2)
	require.NoError(t, store.Put(ctx, first))
	require.NoError(t, store.Put(ctx, second))

	v, found, err := store.Get(ctx, first.Hash, "m")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.Embedding{1, 1}, v)
}

func TestCacheStore_ConcurrentPut(t *testing.T) {
	store, _ := setupCacheStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 32)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Put(ctx, entry("contended", "m", float32(i)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	v, found, err := store.Get(ctx, core.HashContent("contended"), "m")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, v, 1)
}

func TestCacheStore_GetMany(t *testing.T) {
	store, _ := setupCacheStore(t)
	ctx := context.Background()

	a := entry("a", "m", 1)
	b := entry("b", "m", 2)
	require.NoError(t, store.Put(ctx, a))
	require.NoError(t, store.Put(ctx, b))

	hits, err := store.GetMany(ctx, []core.ContentHash{a.Hash, b.Hash, core.HashContent("c")}, "m")
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, core.Embedding{1}, hits[a.Hash])
	assert.Equal(t, core.Embedding{2}, hits[b.Hash])

	empty, err := store.GetMany(ctx, nil, "m")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCacheStore_Closed(t *testing.T) {
	store, backend := setupCacheStore(t)
	require.NoError(t, backend.Close())

	_, _, err := store.Get(context.Background(), core.HashContent("x"), "m")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	_, err = store.GetMany(context.Background(), []core.ContentHash{core.HashContent("x")}, "m")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	err = store.Put(context.Background(), entry("x", "m", 1))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
