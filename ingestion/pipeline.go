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

package ingestion

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/batch"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// Pipeline orchestrates the ingestion and embedding of documents.
type Pipeline struct {
	repository storage.DocumentRepository
	pool       *ants.Pool
	embedder   *embeddingProcessor
	model      string
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithModel overrides the model name recorded on documents and used as the
// embedding cache key. Default is the provider's model.
func WithModel(model string) Option {
	return func(p *Pipeline) error {
		if model == "" {
			return core.ErrEmptyModel
		}
		p.model = model
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	repository storage.DocumentRepository,
	processor *batch.Processor,
	provider ai.Provider,
	opts ...Option,
) (*Pipeline, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}
	if processor == nil {
		return nil, ErrProcessorRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	generate, err := batch.FromEmbedder(provider.Embedder())
	if err != nil {
		return nil, err
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		repository: repository,
		pool:       pool,
		model:      provider.Model(),
		logger:     slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.embedder = &embeddingProcessor{
		repository: repository,
		processor:  processor,
		generate:   generate,
		model:      p.model,
		logger:     p.logger.With("processor", "embeddings"),
	}

	return p, nil
}

// IngestOptions holds optional parameters for ingestion.
type IngestOptions struct {
	Metadata map[string]string // Optional metadata to attach to documents
}

// Ingest stores contents as documents and embeds them asynchronously.
// Contents that are already stored keep their existing document; they are
// re-embedded only when their vector came from a different model.
// Errors during async processing are reported through the returned Job.
func (p *Pipeline) Ingest(ctx context.Context, contents []string, opts *IngestOptions) (*Job, error) {
	if opts == nil {
		opts = &IngestOptions{}
	}

	docs := make([]*core.Document, len(contents))
	for i, content := range contents {
		docs[i] = &core.Document{
			Content:  content,
			Metadata: opts.Metadata,
		}
	}

	added, err := p.repository.AddDocuments(ctx, docs...)
	if err != nil {
		return nil, err
	}

	job := newJob()
	seen := make(map[core.ID]bool, len(added))
	var pending []core.ID
	for _, doc := range added {
		if seen[doc.ID] {
			continue
		}
		seen[doc.ID] = true
		job.Documents = append(job.Documents, doc.ID)
		if len(doc.Vector) == 0 || doc.Model != p.model {
			pending = append(pending, doc.ID)
		}
	}

	logger := p.logger.With("job", job.ID)
	if len(pending) == 0 {
		logger.Debug("nothing to embed", "documents", len(job.Documents))
		job.finish(batch.Stats{}, nil)
		return job, nil
	}

	// Async work outlives the request but keeps its values
	asyncCtx := context.WithoutCancel(ctx)

	p.wg.Add(1)
	err = p.pool.Submit(func() {
		defer p.wg.Done()
		stats, err := p.embedder.process(asyncCtx, pending...)
		if err != nil {
			logger.Error("error processing embeddings", "err", err)
		} else {
			logger.Info("job complete", "documents", len(pending), "stats", stats)
		}
		job.finish(stats, err)
	})
	if err != nil {
		p.wg.Done()
		return nil, err
	}

	return job, nil
}

// Wait blocks until every submitted job has settled.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Release releases resources including the worker pool.
// Call Wait first to let queued jobs finish.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Job tracks the asynchronous embedding of one Ingest call.
type Job struct {
	ID        string
	Documents []core.ID

	done  chan struct{}
	stats batch.Stats
	err   error
}

func newJob() *Job {
	return &Job{
		ID:   uuid.NewString(),
		done: make(chan struct{}),
	}
}

func (j *Job) finish(stats batch.Stats, err error) {
	j.stats = stats
	j.err = err
	close(j.done)
}

// Done is closed once the job has settled.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job settles or ctx ends, and returns the batch
// statistics and the embedding error, if any.
func (j *Job) Wait(ctx context.Context) (batch.Stats, error) {
	select {
	case <-j.done:
		return j.stats, j.err
	case <-ctx.Done():
		return batch.Stats{}, ctx.Err()
	}
}
