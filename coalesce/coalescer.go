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

// Package coalesce collapses concurrent identical embedding generation
// requests into a single in-flight call.
//
// A Coalescer is an explicit value: every pipeline that should share
// deduplication state shares one Coalescer, and independent pipelines (or
// tests) construct their own. Deduplication is in-process only; work done
// by other processes is picked up through the embedding cache.
package coalesce

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/metrics"
	"golang.org/x/sync/singleflight"
)

// GenerateFunc produces the embedding for one in-flight key.
type GenerateFunc func(ctx context.Context) (core.Embedding, error)

// Coalescer tracks in-flight generation calls keyed by (model, content hash).
// The zero value is not usable; call New.
type Coalescer struct {
	group   singleflight.Group
	pending atomic.Int64
	metrics *metrics.Metrics
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithMetrics records generation calls, shared results and the number of
// calls in flight.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coalescer) {
		c.metrics = m
	}
}

// New creates an empty Coalescer.
func New(opts ...Option) *Coalescer {
	c := &Coalescer{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do returns the embedding for (hash, model), invoking fn only if no call
// for the same key is already in flight. Every caller that joins an
// in-flight call observes the same embedding or the same error.
//
// The key is released as soon as fn settles, on success and on failure, so
// a later call for the same key starts a fresh generation.
//
// fn runs detached from the caller's cancellation so that one caller giving
// up does not fail the others sharing the call. A caller whose ctx ends
// stops waiting and gets ctx.Err(); the generation itself carries on.
func (c *Coalescer) Do(ctx context.Context, hash core.ContentHash, model string, fn GenerateFunc) (core.Embedding, error) {
	if fn == nil {
		return nil, ErrGenerateFuncRequired
	}

	// leader is only written by the goroutine running this caller's closure,
	// and is read after the result is received from the channel.
	leader := false
	genCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key(model, hash), func() (any, error) {
		leader = true
		return c.generate(genCtx, fn)
	})

	select {
	case res := <-ch:
		if !leader {
			c.metrics.RecordShared()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(core.Embedding), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of generation calls currently in flight.
func (c *Coalescer) Pending() int {
	return int(c.pending.Load())
}

func (c *Coalescer) generate(ctx context.Context, fn GenerateFunc) (emb core.Embedding, err error) {
	c.pending.Add(1)
	c.metrics.GenerationStarted()
	defer func() {
		// singleflight re-panics on a fresh goroutine, which would take the
		// process down; turn it into an error every waiter can see.
		if r := recover(); r != nil {
			emb, err = nil, fmt.Errorf("%w: %v", ErrGenerationPanicked, r)
		}
		c.pending.Add(-1)
		c.metrics.GenerationSettled()
	}()
	return fn(ctx)
}

// key combines model and hash. NUL cannot appear in a hex digest, so
// distinct pairs never collide.
func key(model string, hash core.ContentHash) string {
	return model + "\x00" + string(hash)
}
