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
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/kbsearch/ai/mock"
	"github.com/poiesic/kbsearch/batch"
	"github.com/poiesic/kbsearch/coalesce"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/embedcache"
	"github.com/poiesic/kbsearch/fusion"
	"github.com/poiesic/kbsearch/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo      *badger.DocumentRepository
	processor *batch.Processor
	embedder  *mock.MockEmbedder
	docs      map[string]string // content -> id
}

var corpus = []struct {
	content string
	vector  core.Embedding
}{
	{"artificial intelligence research", core.Embedding{1, 0, 0}},
	{"machine learning models", core.Embedding{0.9, 0.1, 0}},
	{"cooking pasta recipes", core.Embedding{0, 0, 1}},
	{"the intelligence of an octopus", core.Embedding{0, 1, 0}},
}

func newFixture(t *testing.T, seed bool) *fixture {
	t.Helper()
	repo, cacheStore, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})

	cache, err := embedcache.New(cacheStore)
	require.NoError(t, err)
	processor, err := batch.NewProcessor(cache, coalesce.New())
	require.NoError(t, err)
	t.Cleanup(processor.Release)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}

	f := &fixture{
		repo:      repo,
		processor: processor,
		embedder:  embedder,
		docs:      make(map[string]string),
	}
	if seed {
		ctx := context.Background()
		for _, c := range corpus {
			added, err := repo.AddDocuments(ctx, &core.Document{
				Content: c.content,
				Vector:  c.vector,
				Model:   "test-model",
			})
			require.NoError(t, err)
			f.docs[c.content] = added[0].ID.String()
		}
	}
	return f
}

func (f *fixture) searcher(t *testing.T, opts ...Option) *Searcher {
	t.Helper()
	provider := mock.NewMockProviderWithEmbedder(f.embedder, "test-model")
	s, err := NewSearcher(f.repo, f.processor, provider, opts...)
	require.NoError(t, err)
	return s
}

func ids(entries []core.RankedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestNewSearcher(t *testing.T) {
	f := newFixture(t, false)
	provider := mock.NewMockProvider()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(f.repo, f.processor, provider)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
		assert.Equal(t, mock.DefaultModel, searcher.model)
		assert.Equal(t, fusion.DefaultConfig(), searcher.fusion)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(f.repo, f.processor, provider, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher.logger)
	})

	t.Run("with options", func(t *testing.T) {
		searcher, err := NewSearcher(f.repo, f.processor, provider,
			WithLogger(slog.Default()),
			WithMinSimilarity(0.5),
			WithCandidateLimit(10),
			WithModel("other-model"),
		)
		require.NoError(t, err)
		assert.Equal(t, float32(0.5), searcher.minSimilarity)
		assert.Equal(t, 10, searcher.candidateLimit)
		assert.Equal(t, "other-model", searcher.model)
	})

	t.Run("nil dependencies", func(t *testing.T) {
		_, err := NewSearcher(nil, f.processor, provider)
		assert.Equal(t, ErrRepositoryRequired, err)

		_, err = NewSearcher(f.repo, nil, provider)
		assert.Equal(t, ErrProcessorRequired, err)

		_, err = NewSearcher(f.repo, f.processor, nil)
		assert.Equal(t, ErrAIProviderRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewSearcher(f.repo, f.processor, provider, WithFusionConfig(fusion.Config{K: 0}))
		assert.ErrorIs(t, err, fusion.ErrInvalidConfig)

		_, err = NewSearcher(f.repo, f.processor, provider, WithCandidateLimit(0))
		assert.Error(t, err)

		_, err = NewSearcher(f.repo, f.processor, provider, WithMinSimilarity(2))
		assert.Error(t, err)

		_, err = NewSearcher(f.repo, f.processor, provider, WithModel(""))
		assert.ErrorIs(t, err, core.ErrEmptyModel)
	})
}

func TestSearch_EmptyRepository(t *testing.T) {
	f := newFixture(t, false)
	s := f.searcher(t)

	results, err := s.Search(context.Background(), "test query", 10)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_FusesSemanticAndKeyword(t *testing.T) {
	f := newFixture(t, true)
	s := f.searcher(t)

	results, err := s.Search(context.Background(), "artificial intelligence", 10)
	require.NoError(t, err)

	// Research is first in both lists. Machine learning (semantic rank 2)
	// and octopus (keyword rank 2) tie on score and rank; the semantic list
	// is seen first. Cooking matches neither source.
	assert.Equal(t, []string{
		f.docs["artificial intelligence research"],
		f.docs["machine learning models"],
		f.docs["the intelligence of an octopus"],
	}, ids(results))

	top := results[0]
	assert.Equal(t, "artificial intelligence research", top.Content)
	assert.Equal(t, 1, top.SemanticRank)
	assert.Equal(t, 1, top.KeywordRank)
	assert.InDelta(t, 2.0/61.0, top.Score, 1e-12)

	assert.Equal(t, 2, results[1].SemanticRank)
	assert.Zero(t, results[1].KeywordRank)
	assert.Zero(t, results[2].SemanticRank)
	assert.Equal(t, 2, results[2].KeywordRank)
}

func TestSearch_MaxHits(t *testing.T) {
	f := newFixture(t, true)
	s := f.searcher(t)

	results, err := s.Search(context.Background(), "artificial intelligence", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, f.docs["artificial intelligence research"], results[0].ID)

	_, err = s.Search(context.Background(), "artificial intelligence", 0)
	assert.ErrorIs(t, err, ErrInvalidMaxHits)
}

func TestSearch_KeywordOnlyWeights(t *testing.T) {
	f := newFixture(t, true)
	s := f.searcher(t, WithFusionConfig(fusion.Config{SemanticWeight: 0, KeywordWeight: 1, K: fusion.DefaultK}))

	results, err := s.Search(context.Background(), "artificial intelligence", 10)
	require.NoError(t, err)

	// Semantic-only hits still appear, but behind every keyword hit.
	assert.Equal(t, []string{
		f.docs["artificial intelligence research"],
		f.docs["the intelligence of an octopus"],
		f.docs["machine learning models"],
	}, ids(results))
	assert.Zero(t, results[2].Score)
}

func TestSearch_MinSimilarity(t *testing.T) {
	f := newFixture(t, true)
	s := f.searcher(t, WithMinSimilarity(0.999))

	results, err := s.Search(context.Background(), "pasta", 10)
	require.NoError(t, err)

	// Only the exact vector passes the floor; only cooking matches "pasta".
	assert.ElementsMatch(t, []string{
		f.docs["artificial intelligence research"],
		f.docs["cooking pasta recipes"],
	}, ids(results))
}

func TestSearch_QueryEmbeddingIsCached(t *testing.T) {
	f := newFixture(t, true)
	s := f.searcher(t)
	ctx := context.Background()

	monitor := &testMonitor{}
	_, err := s.SearchWithMonitor(ctx, "artificial intelligence", 5, monitor)
	require.NoError(t, err)
	assert.Equal(t, 1, monitor.stats.Misses)

	monitor = &testMonitor{}
	_, err = s.SearchWithMonitor(ctx, "  artificial   intelligence ", 5, monitor)
	require.NoError(t, err)
	assert.Equal(t, 1, monitor.stats.Hits)

	assert.Equal(t, 1, f.embedder.CallCount())
}

func TestSearch_BlankQuery(t *testing.T) {
	f := newFixture(t, true)
	s := f.searcher(t)

	results, err := s.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, f.embedder.CallCount())
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, true)
	boom := errors.New("provider down")
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, boom
	}
	s := f.searcher(t)

	_, err := s.Search(context.Background(), "artificial intelligence", 10)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, batch.ErrGenerationFailed)
}

func TestSearchWithMonitor(t *testing.T) {
	f := newFixture(t, true)
	s := f.searcher(t)

	monitor := &testMonitor{}
	results, err := s.SearchWithMonitor(context.Background(), "artificial intelligence", 2, monitor)
	require.NoError(t, err)

	assert.Equal(t, "artificial intelligence", monitor.query)
	assert.Equal(t, 1, monitor.stats.Total)
	assert.Len(t, monitor.semantic, 2)
	assert.Len(t, monitor.keyword, 2)
	assert.Len(t, monitor.fused, 3)
	assert.Equal(t, results, monitor.results)
	assert.Equal(t, []string{"start", "embedding", "semantic", "keyword", "fusion", "finish"}, monitor.stages)
}

type testMonitor struct {
	query    string
	stats    batch.Stats
	semantic []core.ScoredEntry
	keyword  []core.ScoredEntry
	fused    []core.RankedEntry
	results  []core.RankedEntry
	stages   []string
}

func (m *testMonitor) Start(query string) {
	m.query = query
	m.stages = append(m.stages, "start")
}

func (m *testMonitor) AfterQueryEmbedding(stats batch.Stats) {
	m.stats = stats
	m.stages = append(m.stages, "embedding")
}

func (m *testMonitor) AfterSemanticSearch(entries []core.ScoredEntry) {
	m.semantic = entries
	m.stages = append(m.stages, "semantic")
}

func (m *testMonitor) AfterKeywordSearch(entries []core.ScoredEntry) {
	m.keyword = entries
	m.stages = append(m.stages, "keyword")
}

func (m *testMonitor) AfterFusion(fused []core.RankedEntry) {
	m.fused = fused
	m.stages = append(m.stages, "fusion")
}

func (m *testMonitor) Finish(results []core.RankedEntry) {
	m.results = results
	m.stages = append(m.stages, "finish")
}
