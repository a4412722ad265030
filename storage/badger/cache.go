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
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// CacheStore implements storage.CacheStore for BadgerDB.
type CacheStore struct {
	backend *Backend
}

var _ storage.CacheStore = (*CacheStore)(nil)

// NewCacheStore creates a cache store on top of an open backend.
// Closing the store does not close the backend.
func NewCacheStore(backend *Backend) *CacheStore {
	return &CacheStore{backend: backend}
}

// Close is a no-op; the backend is owned by the caller.
func (s *CacheStore) Close() error {
	return nil
}

// Get looks up a single embedding.
func (s *CacheStore) Get(ctx context.Context, hash core.ContentHash, model string) (core.Embedding, bool, error) {
	var (
		embedding core.Embedding
		found     bool
	)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		embedding, found, err = readCacheEntry(tx, makeCacheKey(model, hash))
		return err
	}, false)
	if err != nil {
		return nil, false, err
	}
	return embedding, found, nil
}

// GetMany looks up all hashes inside one read transaction.
func (s *CacheStore) GetMany(ctx context.Context, hashes []core.ContentHash, model string) (map[core.ContentHash]core.Embedding, error) {
	hits := make(map[core.ContentHash]core.Embedding)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, hash := range hashes {
			if err := ctx.Err(); err != nil {
				return err
			}
			embedding, found, err := readCacheEntry(tx, makeCacheKey(model, hash))
			if err != nil {
				return err
			}
			if found {
				hits[hash] = embedding
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// Put stores an entry unless the key already exists.
func (s *CacheStore) Put(ctx context.Context, entry *core.CacheEntry) error {
	key := makeCacheKey(entry.Model, entry.Hash)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		if err == nil {
			// Existing value wins
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(key, storage.MarshalCacheValue(entry)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	// A conflict means another writer committed the same key after our read.
	// Its value is the one that stays.
	if errors.Is(err, badger.ErrConflict) {
		return nil
	}
	return err
}

// readCacheEntry reads a cache value. A missing key is reported as found=false.
func readCacheEntry(tx *badger.Txn, key []byte) (core.Embedding, bool, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var embedding core.Embedding
	err = item.Value(func(val []byte) error {
		var err error
		embedding, _, err = storage.UnmarshalCacheValue(val)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return embedding, true, nil
}
