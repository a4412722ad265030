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

package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/metrics"
	"github.com/poiesic/kbsearch/storage"
)

// Status describes how a lookup was answered.
type Status int

const (
	// StatusMiss means the store answered and holds no entry.
	StatusMiss Status = iota
	// StatusHit means the store returned an embedding.
	StatusHit
	// StatusUnavailable means the store failed and the lookup was degraded
	// to a miss.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMiss:
		return "miss"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of a single lookup.
type Result struct {
	Embedding core.Embedding
	Status    Status
}

// Found reports whether the lookup produced an embedding.
func (r Result) Found() bool {
	return r.Status == StatusHit
}

// Cache wraps a storage.CacheStore so that store faults never reach callers.
// Reads that fail degrade to misses and writes that fail are dropped, both
// after a warning is logged.
type Cache struct {
	store   storage.CacheStore
	logger  *slog.Logger
	timeout time.Duration
	metrics *metrics.Metrics
}

// Option configures a Cache.
type Option func(*Cache) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "embedding-cache")
		return nil
	}
}

// WithTimeout bounds every store call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) error {
		if d < 0 {
			return fmt.Errorf("cache timeout must not be negative: %s", d)
		}
		c.timeout = d
		return nil
	}
}

// WithMetrics records hits, misses, faults and saves.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) error {
		c.metrics = m
		return nil
	}
}

// New creates a Cache over store.
func New(store storage.CacheStore, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	c := &Cache{
		store:  store,
		logger: slog.Default().With("component", "embedding-cache"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Lookup fetches one embedding and reports whether the store hit, missed or
// was unavailable.
func (c *Cache) Lookup(ctx context.Context, hash core.ContentHash, model string) Result {
	r := c.lookup(ctx, hash, model)
	switch r.Status {
	case StatusHit:
		c.metrics.RecordCacheHit(1)
	case StatusMiss:
		c.metrics.RecordCacheMiss(1)
	}
	return r
}

// Recheck looks up a hash that an earlier Prefetch already counted. It
// records no hit or miss, so each text is counted once per batch.
func (c *Cache) Recheck(ctx context.Context, hash core.ContentHash, model string) (core.Embedding, bool) {
	r := c.lookup(ctx, hash, model)
	return r.Embedding, r.Found()
}

func (c *Cache) lookup(ctx context.Context, hash core.ContentHash, model string) Result {
	var (
		emb   core.Embedding
		found bool
	)
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		emb, found, err = c.store.Get(ctx, hash, model)
		return err
	})
	if err != nil {
		c.fault("get", err, "hash", hash, "model", model)
		return Result{Status: StatusUnavailable}
	}
	if !found {
		return Result{Status: StatusMiss}
	}
	return Result{Embedding: emb, Status: StatusHit}
}

// Get fetches one embedding. Misses and store faults both return false.
func (c *Cache) Get(ctx context.Context, hash core.ContentHash, model string) (core.Embedding, bool) {
	r := c.Lookup(ctx, hash, model)
	return r.Embedding, r.Found()
}

// Prefetch looks up many hashes in one store call. The returned map holds
// only hits and is never nil; a store fault yields an empty map.
func (c *Cache) Prefetch(ctx context.Context, hashes []core.ContentHash, model string) map[core.ContentHash]core.Embedding {
	if len(hashes) == 0 {
		return map[core.ContentHash]core.Embedding{}
	}

	var hits map[core.ContentHash]core.Embedding
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		hits, err = c.store.GetMany(ctx, hashes, model)
		return err
	})
	if err != nil {
		c.fault("prefetch", err, "hashes", len(hashes), "model", model)
		return map[core.ContentHash]core.Embedding{}
	}
	if hits == nil {
		hits = map[core.ContentHash]core.Embedding{}
	}

	c.metrics.RecordCacheHit(len(hits))
	c.metrics.RecordCacheMiss(len(hashes) - len(hits))
	return hits
}

// Save stores an embedding on a best-effort basis. An existing entry for
// the same key is kept.
func (c *Cache) Save(ctx context.Context, hash core.ContentHash, model string, emb core.Embedding) {
	if err := core.ValidateCacheKey(hash, model); err != nil {
		c.logger.Warn("skipping cache save", "hash", hash, "model", model, "error", err)
		return
	}
	if err := core.ValidateEmbedding(emb, 0); err != nil {
		c.logger.Warn("skipping cache save", "hash", hash, "model", model, "error", err)
		return
	}

	entry := &core.CacheEntry{
		Hash:      hash,
		Model:     model,
		Embedding: emb,
		CreatedAt: time.Now().UTC(),
	}
	err := c.call(ctx, func(ctx context.Context) error {
		return c.store.Put(ctx, entry)
	})
	if err != nil {
		c.fault("save", err, "hash", hash, "model", model)
		return
	}
	c.metrics.RecordCacheSave()
}

// call runs fn under the configured timeout and converts a panic in the
// store into an error.
func (c *Cache) call(ctx context.Context, fn func(context.Context) error) (err error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errStorePanic, r)
		}
	}()
	return fn(ctx)
}

func (c *Cache) fault(operation string, err error, attrs ...any) {
	c.metrics.RecordCacheFault(operation)
	c.logger.Warn("cache store unavailable, continuing without cache",
		append([]any{"operation", operation, "error", err}, attrs...)...)
}
