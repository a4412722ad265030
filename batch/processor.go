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

package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/coalesce"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/embedcache"
	"github.com/poiesic/kbsearch/metrics"
	"golang.org/x/sync/errgroup"
)

// GenerateFunc produces the embedding for a single text. It is usually an
// embedding provider call; see FromEmbedder.
type GenerateFunc func(ctx context.Context, text string) (core.Embedding, error)

// FromEmbedder adapts an ai.Embedder to a GenerateFunc.
func FromEmbedder(embedder ai.Embedder) (GenerateFunc, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	return func(ctx context.Context, text string) (core.Embedding, error) {
		v, err := embedder.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		return core.Embedding(v), nil
	}, nil
}

// Processor turns texts into embeddings through the cache and coalescer.
// A Processor is safe for concurrent use. Call Release when done with it.
type Processor struct {
	cache              *embedcache.Cache
	coalescer          *coalesce.Coalescer
	pool               *ants.Pool
	providerBatchLimit int
	maxAttempts        int
	retryDelay         time.Duration
	dimensions         int
	logger             *slog.Logger
	metrics            *metrics.Metrics
}

// NewProcessor creates a batch processor. Processors that share a coalescer
// share in-flight generation calls.
func NewProcessor(cache *embedcache.Cache, coalescer *coalesce.Coalescer, opts ...Option) (*Processor, error) {
	if cache == nil {
		return nil, ErrCacheRequired
	}
	if coalescer == nil {
		return nil, ErrCoalescerRequired
	}

	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		cache:              cache,
		coalescer:          coalescer,
		pool:               pool,
		providerBatchLimit: DefaultProviderBatchLimit,
		maxAttempts:        1,
		logger:             slog.Default().With("component", "batch-processor"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Release frees the worker pool.
func (p *Processor) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// ProviderBatchLimit returns the chunk size used by ProcessBatchWithSplitting.
func (p *Processor) ProviderBatchLimit() int {
	return p.providerBatchLimit
}

// ProcessBatch returns one embedding per text, with result[i] belonging to
// texts[i]. Cached embeddings are used as is. Misses are generated
// concurrently, each distinct text at most once even when several batches
// ask for it at the same time, and written back to the cache.
//
// If any generation fails the whole call fails with a *GenerationError and
// no embeddings are returned.
func (p *Processor) ProcessBatch(ctx context.Context, texts []string, model string, generate GenerateFunc) ([]core.Embedding, Stats, error) {
	embs, stats, err := p.process(ctx, texts, model, generate)
	if err != nil {
		return nil, stats, err
	}
	if stats.Total > 0 {
		p.metrics.RecordBatch(stats.Total, stats.Hits, stats.Misses)
		p.logger.Info("batch processed", "model", model, "stats", stats)
	}
	return embs, stats, nil
}

// ProcessBatchWithSplitting behaves like ProcessBatch but splits texts into
// contiguous chunks of at most the provider batch limit. Chunks run
// concurrently and their results are concatenated in chunk order.
func (p *Processor) ProcessBatchWithSplitting(ctx context.Context, texts []string, model string, generate GenerateFunc) ([]core.Embedding, Stats, error) {
	bounds := chunkBounds(len(texts), p.providerBatchLimit)
	if len(bounds) <= 1 {
		return p.ProcessBatch(ctx, texts, model, generate)
	}

	results := make([][]core.Embedding, len(bounds))
	chunkStats := make([]Stats, len(bounds))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range bounds {
		g.Go(func() error {
			embs, stats, err := p.ProcessBatch(gctx, texts[b[0]:b[1]], model, generate)
			if err != nil {
				var genErr *GenerationError
				if errors.As(err, &genErr) {
					// Report the position in the caller's slice, not the chunk's.
					return &GenerationError{Index: genErr.Index + b[0], Hash: genErr.Hash, Err: genErr.Err}
				}
				return err
			}
			results[i] = embs
			chunkStats[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	out := make([]core.Embedding, 0, len(texts))
	var total Stats
	for i := range bounds {
		out = append(out, results[i]...)
		total = total.Add(chunkStats[i])
	}
	p.logger.Info("split batch processed", "model", model, "chunks", len(bounds), "stats", total)
	return out, total, nil
}

// miss is one distinct text that has to be generated.
type miss struct {
	index int // first input position with this hash
	hash  core.ContentHash
	text  string
}

func (p *Processor) process(ctx context.Context, texts []string, model string, generate GenerateFunc) ([]core.Embedding, Stats, error) {
	if model == "" {
		return nil, Stats{}, core.ErrEmptyModel
	}
	if generate == nil {
		return nil, Stats{}, ErrGenerateFuncRequired
	}
	if len(texts) == 0 {
		return []core.Embedding{}, Stats{}, nil
	}
	if p.maxAttempts > 1 {
		generate = Retrying(generate, p.maxAttempts, p.retryDelay)
	}

	// Hash every position and collect distinct hashes in first-seen order.
	hashes := make([]core.ContentHash, len(texts))
	firstIndex := make(map[core.ContentHash]int, len(texts))
	distinct := make([]core.ContentHash, 0, len(texts))
	for i, text := range texts {
		h := core.HashContent(text)
		hashes[i] = h
		if _, seen := firstIndex[h]; !seen {
			firstIndex[h] = i
			distinct = append(distinct, h)
		}
	}

	hits := p.cache.Prefetch(ctx, distinct, model)

	var misses []miss
	for _, h := range distinct {
		if _, ok := hits[h]; !ok {
			i := firstIndex[h]
			misses = append(misses, miss{index: i, hash: h, text: texts[i]})
		}
	}

	var calls atomic.Int64
	generated, err := p.resolve(ctx, misses, model, generate, &calls)
	if err != nil {
		return nil, Stats{}, err
	}

	out := make([]core.Embedding, len(texts))
	stats := Stats{Total: len(texts), GenerationCalls: int(calls.Load())}
	for i, h := range hashes {
		if emb, ok := hits[h]; ok {
			out[i] = emb
			stats.Hits++
			continue
		}
		out[i] = generated[h]
		stats.Misses++
	}
	return out, stats, nil
}

// resolve generates every miss through the coalescer on the worker pool.
// The first failure cancels the remaining work and is returned.
func (p *Processor) resolve(ctx context.Context, misses []miss, model string, generate GenerateFunc, calls *atomic.Int64) (map[core.ContentHash]core.Embedding, error) {
	generated := make(map[core.ContentHash]core.Embedding, len(misses))
	if len(misses) == 0 {
		return generated, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failOnce sync.Once
		firstErr error
	)
	fail := func(err error) {
		failOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for _, m := range misses {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()

			emb, err := p.coalescer.Do(ctx, m.hash, model, p.leader(m, model, generate, calls))
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					fail(err)
					return
				}
				fail(&GenerationError{Index: m.index, Hash: m.hash, Err: err})
				return
			}

			mu.Lock()
			generated[m.hash] = emb
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit generation task: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		p.logger.Error("batch generation failed", "model", model, "misses", len(misses), "error", firstErr)
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return generated, nil
}

// leader returns the function run by whichever caller starts the in-flight
// call for m. It checks the cache again, since another process or a batch
// that settled after our prefetch may have filled it.
func (p *Processor) leader(m miss, model string, generate GenerateFunc, calls *atomic.Int64) coalesce.GenerateFunc {
	return func(ctx context.Context) (core.Embedding, error) {
		if emb, ok := p.cache.Recheck(ctx, m.hash, model); ok {
			return emb, nil
		}

		calls.Add(1)
		emb, err := generate(ctx, m.text)
		if err != nil {
			return nil, err
		}
		if err := core.ValidateEmbedding(emb, p.dimensions); err != nil {
			return nil, err
		}

		p.cache.Save(ctx, m.hash, model, emb)
		return emb, nil
	}
}

// chunkBounds splits n items into contiguous [start, end) ranges of at most
// size items.
func chunkBounds(n, size int) [][2]int {
	if n == 0 {
		return nil
	}
	bounds := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		bounds = append(bounds, [2]int{start, min(start+size, n)})
	}
	return bounds
}
