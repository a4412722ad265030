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

package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/batch"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/fusion"
	"github.com/poiesic/kbsearch/storage"
)

const (
	// DefaultMinSimilarity is the cosine similarity floor for semantic hits.
	DefaultMinSimilarity = 0.3

	// DefaultCandidateLimit is how many entries each source contributes
	// before fusion.
	DefaultCandidateLimit = 50
)

// Searcher provides hybrid semantic and keyword search over documents.
type Searcher struct {
	repository     storage.DocumentRepository
	processor      *batch.Processor
	generate       batch.GenerateFunc
	model          string
	fusion         fusion.Config
	minSimilarity  float32
	candidateLimit int
	logger         *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "searcher")
		return nil
	}
}

// WithFusionConfig sets the weights and k used to merge the two lists.
func WithFusionConfig(cfg fusion.Config) Option {
	return func(s *Searcher) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		s.fusion = cfg
		return nil
	}
}

// WithMinSimilarity sets the similarity floor for semantic hits.
func WithMinSimilarity(minSimilarity float32) Option {
	return func(s *Searcher) error {
		if minSimilarity < -1 || minSimilarity > 1 {
			return fmt.Errorf("min similarity %v out of range [-1, 1]", minSimilarity)
		}
		s.minSimilarity = minSimilarity
		return nil
	}
}

// WithCandidateLimit sets how many entries each source returns.
// The effective limit is never below maxHits.
func WithCandidateLimit(limit int) Option {
	return func(s *Searcher) error {
		if limit <= 0 {
			return fmt.Errorf("candidate limit must be positive, got %d", limit)
		}
		s.candidateLimit = limit
		return nil
	}
}

// WithModel overrides the model name used as the embedding cache key.
// Default is the provider's model.
func WithModel(model string) Option {
	return func(s *Searcher) error {
		if model == "" {
			return core.ErrEmptyModel
		}
		s.model = model
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	repository storage.DocumentRepository,
	processor *batch.Processor,
	provider ai.Provider,
	opts ...Option,
) (*Searcher, error) {
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

	s := &Searcher{
		repository:     repository,
		processor:      processor,
		generate:       generate,
		model:          provider.Model(),
		fusion:         fusion.DefaultConfig(),
		minSimilarity:  DefaultMinSimilarity,
		candidateLimit: DefaultCandidateLimit,
		logger:         slog.Default().With("component", "searcher"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search returns up to maxHits documents relevant to query, best first.
func (s *Searcher) Search(ctx context.Context, query string, maxHits int) ([]core.RankedEntry, error) {
	return s.SearchWithMonitor(ctx, query, maxHits, nil)
}

// SearchWithMonitor is Search with a monitor that receives a callback after
// each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, maxHits int, monitor SearchMonitor) ([]core.RankedEntry, error) {
	if maxHits <= 0 {
		return nil, ErrInvalidMaxHits
	}
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(query)

	if strings.TrimSpace(query) == "" {
		monitor.Finish([]core.RankedEntry{})
		return []core.RankedEntry{}, nil
	}

	limit := max(s.candidateLimit, maxHits)

	// 1. Embed the query through the cache
	vectors, stats, err := s.processor.ProcessBatch(ctx, []string{query}, s.model, s.generate)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterQueryEmbedding(stats)

	// 2. Semantic source
	semantic, err := s.repository.FindSimilar(ctx, vectors[0], s.minSimilarity, limit)
	if err != nil {
		s.logger.Error("error querying for similar documents", "err", err)
		return nil, err
	}
	monitor.AfterSemanticSearch(semantic)

	// 3. Keyword source
	keyword, err := s.repository.SearchKeyword(ctx, query, limit)
	if err != nil {
		s.logger.Error("error running keyword search", "err", err)
		return nil, err
	}
	monitor.AfterKeywordSearch(keyword)

	// 4. Fuse by rank
	fused, err := fusion.Fuse(semantic, keyword, s.fusion)
	if err != nil {
		return nil, err
	}
	monitor.AfterFusion(fused)

	if len(fused) > maxHits {
		fused = fused[:maxHits]
	}
	s.logger.Debug("search complete",
		"semantic", len(semantic),
		"keyword", len(keyword),
		"results", len(fused),
		"cache_hit", stats.Hits > 0)
	monitor.Finish(fused)

	return fused, nil
}
