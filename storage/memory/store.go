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

// Package memory provides a process-local storage.CacheStore.
package memory

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// DefaultCleanupInterval is how often expired entries are purged.
const DefaultCleanupInterval = 10 * time.Minute

// Store implements storage.CacheStore in process memory.
type Store struct {
	items *cache.Cache
}

var _ storage.CacheStore = (*Store)(nil)

// NewStore creates an in-memory cache store. A ttl of zero keeps entries
// until the process exits.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Store{items: cache.New(ttl, DefaultCleanupInterval)}
}

// Close drops every entry.
func (s *Store) Close() error {
	s.items.Flush()
	return nil
}

// Len returns the number of cached entries, including expired entries not
// yet purged.
func (s *Store) Len() int {
	return s.items.ItemCount()
}

// Get looks up a single embedding.
func (s *Store) Get(ctx context.Context, hash core.ContentHash, model string) (core.Embedding, bool, error) {
	v, found := s.items.Get(key(model, hash))
	if !found {
		return nil, false, nil
	}
	return slices.Clone(v.(core.Embedding)), true, nil
}

// GetMany looks up many hashes.
func (s *Store) GetMany(ctx context.Context, hashes []core.ContentHash, model string) (map[core.ContentHash]core.Embedding, error) {
	hits := make(map[core.ContentHash]core.Embedding)
	for _, hash := range hashes {
		if v, found := s.items.Get(key(model, hash)); found {
			hits[hash] = slices.Clone(v.(core.Embedding))
		}
	}
	return hits, nil
}

// Put adds the entry unless the key exists. Add fails on an existing key,
// which is exactly the insert-or-ignore case, so that error is dropped.
// Entries are copied in and out so callers never share the stored slice.
func (s *Store) Put(ctx context.Context, entry *core.CacheEntry) error {
	_ = s.items.Add(key(entry.Model, entry.Hash), slices.Clone(entry.Embedding), cache.DefaultExpiration)
	return nil
}

func key(model string, hash core.ContentHash) string {
	return model + ":" + string(hash)
}
