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

// Package natskv implements storage.CacheStore on a NATS JetStream
// KeyValue bucket, so several processes can share one embedding cache.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// DefaultBucket is the bucket name used when none is configured.
const DefaultBucket = "kbsearch_embeddings"

// Store implements storage.CacheStore on a JetStream KeyValue bucket.
type Store struct {
	bucket jetstream.KeyValue
}

var _ storage.CacheStore = (*Store)(nil)

// NewStore wraps an existing bucket.
func NewStore(bucket jetstream.KeyValue) *Store {
	return &Store{bucket: bucket}
}

// Open creates or updates the named bucket and wraps it. A ttl of zero keeps
// entries forever.
func Open(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "content-hash keyed embedding cache",
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}
	return NewStore(kv), nil
}

// Close is a no-op; the NATS connection is owned by the caller.
func (s *Store) Close() error {
	return nil
}

// Get looks up a single embedding.
func (s *Store) Get(ctx context.Context, hash core.ContentHash, model string) (core.Embedding, bool, error) {
	entry, err := s.bucket.Get(ctx, key(model, hash))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get from cache: %w", err)
	}

	v, _, err := storage.UnmarshalCacheValue(entry.Value())
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// GetMany issues one Get per hash. KeyValue has no multi-get, so this costs
// one round trip per key.
func (s *Store) GetMany(ctx context.Context, hashes []core.ContentHash, model string) (map[core.ContentHash]core.Embedding, error) {
	hits := make(map[core.ContentHash]core.Embedding)
	for _, hash := range hashes {
		v, found, err := s.Get(ctx, hash, model)
		if err != nil {
			return nil, err
		}
		if found {
			hits[hash] = v
		}
	}
	return hits, nil
}

// Put uses Create, which fails with ErrKeyExists when another writer got
// there first. That is the insert-or-ignore case and is not an error.
func (s *Store) Put(ctx context.Context, entry *core.CacheEntry) error {
	_, err := s.bucket.Create(ctx, key(entry.Model, entry.Hash), storage.MarshalCacheValue(entry))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return nil
		}
		return fmt.Errorf("failed to put in cache: %w", err)
	}
	return nil
}

// key builds "<model>.<hash>". Model names are base64url encoded because KV
// keys only allow [-/_=.a-zA-Z0-9].
func key(model string, hash core.ContentHash) string {
	return base64.RawURLEncoding.EncodeToString([]byte(model)) + "." + string(hash)
}
