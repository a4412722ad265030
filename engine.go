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

package kbsearch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/batch"
	"github.com/poiesic/kbsearch/coalesce"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/embedcache"
	"github.com/poiesic/kbsearch/ingestion"
	"github.com/poiesic/kbsearch/metrics"
	"github.com/poiesic/kbsearch/reembed"
	"github.com/poiesic/kbsearch/search"
	"github.com/poiesic/kbsearch/storage"
	"github.com/poiesic/kbsearch/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine owns the document store, the embedding cache and the batch
// processor, and hands out pipelines and searchers that share them.
type Engine struct {
	backend    *badger.Backend
	documents  *badger.DocumentRepository
	cacheStore storage.CacheStore
	provider   ai.Provider
	generate   batch.GenerateFunc
	metrics    *metrics.Metrics
	processor  *batch.Processor
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	aiConfig     *ai.Config
	provider     ai.Provider
	cacheStore   storage.CacheStore
	inMemory     bool
	registerer   prometheus.Registerer
	cacheTimeout time.Duration
	batchOptions []batch.Option
	logger       *slog.Logger
}

// WithAIConfig sets the provider configuration. Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) Option {
	return func(o *engineOptions) {
		o.aiConfig = config
	}
}

// WithProvider uses an already built provider instead of one derived from
// the AI config. The engine closes it.
func WithProvider(provider ai.Provider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithCacheStore stores embeddings in store instead of the document
// database. The engine closes it.
func WithCacheStore(store storage.CacheStore) Option {
	return func(o *engineOptions) {
		o.cacheStore = store
	}
}

// WithInMemory keeps the document database in memory; the path is ignored.
func WithInMemory() Option {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithMetricsRegisterer registers the engine's collectors with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) {
		o.registerer = reg
	}
}

// WithCacheTimeout bounds each cache store call.
func WithCacheTimeout(d time.Duration) Option {
	return func(o *engineOptions) {
		o.cacheTimeout = d
	}
}

// WithBatchOptions passes extra options to the batch processor. They are
// applied after the ones derived from the AI config.
func WithBatchOptions(opts ...batch.Option) Option {
	return func(o *engineOptions) {
		o.batchOptions = append(o.batchOptions, opts...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open opens (or creates) the document database at filePath and builds the
// embedding stack on top of it.
func Open(filePath string, opts ...Option) (*Engine, error) {
	options := &engineOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if err := options.aiConfig.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{logger: options.logger.With("component", "engine")}

	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	// The caller-supplied resources are ours to close from here on.
	e.provider = options.provider
	e.cacheStore = options.cacheStore

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}
	e.backend = backend
	e.documents = badger.NewDocumentRepository(backend)
	if e.cacheStore == nil {
		e.cacheStore = badger.NewCacheStore(backend)
	}

	if e.provider == nil {
		provider, err := NewProvider(options.aiConfig)
		if err != nil {
			return nil, err
		}
		e.provider = provider
	}
	generate, err := batch.FromEmbedder(e.provider.Embedder())
	if err != nil {
		return nil, err
	}
	e.generate = generate

	m, err := metrics.New(options.registerer)
	if err != nil {
		return nil, err
	}
	e.metrics = m

	cache, err := embedcache.New(e.cacheStore,
		embedcache.WithLogger(options.logger),
		embedcache.WithTimeout(options.cacheTimeout),
		embedcache.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	batchOpts := []batch.Option{
		batch.WithProviderBatchLimit(options.aiConfig.BatchLimit),
		batch.WithDimensions(options.aiConfig.Dimensions),
		batch.WithLogger(options.logger),
		batch.WithMetrics(m),
	}
	batchOpts = append(batchOpts, options.batchOptions...)
	processor, err := batch.NewProcessor(cache, coalesce.New(coalesce.WithMetrics(m)), batchOpts...)
	if err != nil {
		return nil, err
	}
	e.processor = processor

	ok = true
	e.logger.Debug("engine opened", "path", filePath, "in_memory", options.inMemory, "model", e.provider.Model())
	return e, nil
}

// Close releases everything the engine owns. It is safe to call on a
// partially opened engine.
func (e *Engine) Close() error {
	var errs []error

	if e.processor != nil {
		e.processor.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.cacheStore != nil {
		if err := e.cacheStore.Close(); err != nil {
			e.logger.Error("error closing cache store", "err", err)
			errs = append(errs, err)
		}
	}
	if e.documents != nil {
		if err := e.documents.Close(); err != nil {
			e.logger.Error("error closing document repository", "err", err)
			errs = append(errs, err)
		}
	}
	if e.backend != nil && !e.backend.IsClosed() {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Documents returns the document repository.
func (e *Engine) Documents() storage.DocumentRepository {
	return e.documents
}

// Processor returns the shared batch processor.
func (e *Engine) Processor() *batch.Processor {
	return e.processor
}

// Provider returns the embedding provider.
func (e *Engine) Provider() ai.Provider {
	return e.provider
}

// Model returns the embedding model name used as the cache key.
func (e *Engine) Model() string {
	return e.provider.Model()
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Embed returns one embedding per text, in input order, splitting large
// inputs into provider-sized batches.
func (e *Engine) Embed(ctx context.Context, texts []string) ([]core.Embedding, batch.Stats, error) {
	return e.processor.ProcessBatchWithSplitting(ctx, texts, e.provider.Model(), e.generate)
}

// NewIngestionPipeline creates a pipeline that stores documents in the
// engine's repository.
func (e *Engine) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(e.documents, e.processor, e.provider, opts...)
}

// NewSearcher creates a hybrid searcher over the engine's repository.
func (e *Engine) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(e.documents, e.processor, e.provider, opts...)
}

// NewReembedder creates a reembedder over the engine's repository.
func (e *Engine) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(e.documents, e.processor, e.provider, config, progress)
}
