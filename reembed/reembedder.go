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

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/batch"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of documents to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Model overrides the provider's model name when set.
	Model string

	// SkipCurrent leaves documents already embedded with the target model
	// untouched, which makes an interrupted run resumable.
	SkipCurrent bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of all documents in a repository.
type Reembedder struct {
	repo     storage.DocumentRepository
	config   *Config
	model    string
	progress io.Writer
	embedder *BatchEmbedder
	iterator *DocumentIterator
	logger   *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(
	repo storage.DocumentRepository,
	processor *batch.Processor,
	provider ai.Provider,
	config *Config,
	progress io.Writer,
) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if processor == nil {
		return nil, ErrProcessorRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries <= 0 {
		return nil, batch.ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	generate, err := batch.FromEmbedder(provider.Embedder())
	if err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = provider.Model()
	}

	return &Reembedder{
		repo:     repo,
		config:   config,
		model:    model,
		progress: progress,
		embedder: NewBatchEmbedder(repo, processor, generate, model, config.MaxRetries, config.RetryDelay),
		iterator: NewDocumentIterator(repo, config.BatchSize),
		logger:   slog.Default().With("component", "reembedder", "model", model),
	}, nil
}

// Run re-embeds every document with the configured model.
// Progress is reported to the configured writer. The returned Stats sum the
// batch statistics of every page.
func (r *Reembedder) Run(ctx context.Context) (batch.Stats, error) {
	totalDocuments, err := r.repo.CountDocuments(ctx)
	if err != nil {
		return batch.Stats{}, fmt.Errorf("failed to count documents: %w", err)
	}

	if totalDocuments == 0 {
		fmt.Fprintf(r.progress, "No documents found in database (0 documents)\n")
		return batch.Stats{}, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d documents with %s (batch size: %d)\n",
		totalDocuments, r.model, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, totalDocuments, r.config.ReportInterval)
	tracker.Start()

	skipped := 0
	err = r.iterator.ForEach(ctx, func(docs []*core.Document) error {
		todo := docs
		if r.config.SkipCurrent {
			todo = make([]*core.Document, 0, len(docs))
			for _, doc := range docs {
				if doc.Model == r.model && len(doc.Vector) > 0 {
					skipped++
					continue
				}
				todo = append(todo, doc)
			}
		}

		stats, err := r.embedder.Process(ctx, todo)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		tracker.Add(len(docs), stats)
		return nil
	})
	if err != nil {
		r.logger.Error("reembedding stopped", "err", err, "stats", tracker.Stats())
		return tracker.Stats(), err
	}

	tracker.Finish()

	stats := tracker.Stats()
	elapsed := tracker.Elapsed()
	r.logger.Info("reembedding complete", "documents", totalDocuments, "skipped", skipped, "stats", stats)
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d documents in %v (%.1f docs/sec)\n",
		totalDocuments, elapsed.Round(time.Second), float64(totalDocuments)/elapsed.Seconds())

	return stats, nil
}
