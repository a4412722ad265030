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

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/kbsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InsertOrIgnore(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()
	hash := core.HashContent("text")

	require.NoError(t, store.Put(ctx, &core.CacheEntry{Hash: hash, Model: "m", Embedding: core.Embedding{1}}))
	require.NoError(t, store.Put(ctx, &core.CacheEntry{Hash: hash, Model: "m", Embedding: core.Embedding{2}}))

	v, found, err := store.Get(ctx, hash, "m")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, core.Embedding{1}, v)
	assert.Equal(t, 1, store.Len())
}

func TestStore_GetMany(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()
	a, b := core.HashContent("a"), core.HashContent("b")

	require.NoError(t, store.Put(ctx, &core.CacheEntry{Hash: a, Model: "m", Embedding: core.Embedding{1}}))

	hits, err := store.GetMany(ctx, []core.ContentHash{a, b}, "m")
	require.NoError(t, err)
	assert.Equal(t, map[core.ContentHash]core.Embedding{a: {1}}, hits)

	hits, err = store.GetMany(ctx, []core.ContentHash{a}, "other-model")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_ConcurrentPut(t *testing.T) {
	store := NewStore(0)
	hash := core.HashContent("contended")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Put(context.Background(), &core.CacheEntry{Hash: hash, Model: "m", Embedding: core.Embedding{float32(i)}}))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, store.Len())
}

func TestStore_TTL(t *testing.T) {
	store := NewStore(20 * time.Millisecond)
	ctx := context.Background()
	hash := core.HashContent("ephemeral")

	require.NoError(t, store.Put(ctx, &core.CacheEntry{Hash: hash, Model: "m", Embedding: core.Embedding{1}}))
	time.Sleep(50 * time.Millisecond)

	_, found, err := store.Get(ctx, hash, "m")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Close(t *testing.T) {
	store := NewStore(0)
	require.NoError(t, store.Put(context.Background(), &core.CacheEntry{Hash: core.HashContent("x"), Model: "m", Embedding: core.Embedding{1}}))
	require.NoError(t, store.Close())
	assert.Equal(t, 0, store.Len())
}

func TestStore_EntriesDoNotAliasCallerSlices(t *testing.T) {
	store := NewStore(0)
	ctx := context.Background()
	hash := core.HashContent("text")

	buf := core.Embedding{1, 2, 3}
	require.NoError(t, store.Put(ctx, &core.CacheEntry{Hash: hash, Model: "m", Embedding: buf}))
	buf[0] = 99

	v, found, err := store.Get(ctx, hash, "m")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.Embedding{1, 2, 3}, v)
	v[1] = 42

	hits, err := store.GetMany(ctx, []core.ContentHash{hash}, "m")
	require.NoError(t, err)
	assert.Equal(t, core.Embedding{1, 2, 3}, hits[hash])
	hits[hash][2] = 7

	v, _, err = store.Get(ctx, hash, "m")
	require.NoError(t, err)
	assert.Equal(t, core.Embedding{1, 2, 3}, v)
}
