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
	"hash/fnv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/kbsearch/coalesce"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/embedcache"
	"github.com/poiesic/kbsearch/storage"
	"github.com/poiesic/kbsearch/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModel = "test-model"

// fakeProvider records generation calls per text.
type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	delay map[string]time.Duration
	gate  chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls: make(map[string]int),
		fail:  make(map[string]error),
		delay: make(map[string]time.Duration),
	}
}

func (f *fakeProvider) generate(ctx context.Context, text string) (core.Embedding, error) {
	f.mu.Lock()
	f.calls[text]++
	err := f.fail[text]
	delay := f.delay[text]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return vectorFor(text), nil
}

func (f *fakeProvider) callsFor(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func (f *fakeProvider) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func vectorFor(text string) core.Embedding {
	h := fnv.New32a()
	h.Write([]byte(core.Normalize(text)))
	sum := h.Sum32()
	return core.Embedding{float32(sum % 1000), float32(sum / 1000 % 1000), float32(len(text))}
}

// brokenStore fails every call.
type brokenStore struct {
	calls atomic.Int32
}

var _ storage.CacheStore = (*brokenStore)(nil)

func (s *brokenStore) Get(context.Context, core.ContentHash, string) (core.Embedding, bool, error) {
	s.calls.Add(1)
	return nil, false, errors.New("timeout")
}

func (s *brokenStore) GetMany(context.Context, []core.ContentHash, string) (map[core.ContentHash]core.Embedding, error) {
	s.calls.Add(1)
	return nil, errors.New("timeout")
}

func (s *brokenStore) Put(context.Context, *core.CacheEntry) error {
	s.calls.Add(1)
	return errors.New("timeout")
}

func (s *brokenStore) Close() error { return nil }

func newProcessor(t *testing.T, store storage.CacheStore, opts ...Option) (*Processor, *embedcache.Cache) {
	t.Helper()
	cache, err := embedcache.New(store)
	require.NoError(t, err)
	p, err := NewProcessor(cache, coalesce.New(), opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p, cache
}

func TestNewProcessor_RequiresDependencies(t *testing.T) {
	cache, err := embedcache.New(memory.NewStore(0))
	require.NoError(t, err)

	_, err = NewProcessor(nil, coalesce.New())
	assert.ErrorIs(t, err, ErrCacheRequired)

	_, err = NewProcessor(cache, nil)
	assert.ErrorIs(t, err, ErrCoalescerRequired)

	_, err = NewProcessor(cache, coalesce.New(), WithProviderBatchLimit(0))
	assert.ErrorIs(t, err, ErrInvalidBatchLimit)

	_, err = NewProcessor(cache, coalesce.New(), WithRetry(0, time.Millisecond))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestProcessBatch_PreservesOrder(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0))
	provider := newFakeProvider()
	// "a" finishes last so completion order differs from input order.
	provider.delay["a"] = 30 * time.Millisecond

	texts := []string{"a", "b", "a", "c"}
	embs, stats, err := p.ProcessBatch(context.Background(), texts, testModel, provider.generate)
	require.NoError(t, err)

	require.Len(t, embs, 4)
	for i, text := range texts {
		assert.Equal(t, vectorFor(text), embs[i], "position %d", i)
	}
	assert.Equal(t, embs[0], embs[2])

	assert.Equal(t, 1, provider.callsFor("a"))
	assert.Equal(t, Stats{Total: 4, Hits: 0, Misses: 4, GenerationCalls: 3}, stats)
}

func TestProcessBatch_NormalizedDuplicatesShareGeneration(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0))
	provider := newFakeProvider()

	embs, stats, err := p.ProcessBatch(context.Background(), []string{" foo   bar ", "foo bar"}, testModel, provider.generate)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.totalCalls())
	assert.Equal(t, embs[0], embs[1])
	assert.Equal(t, 1, stats.GenerationCalls)
}

func TestProcessBatch_ConcurrentBatchesDeduplicate(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0))
	provider := newFakeProvider()
	provider.gate = make(chan struct{})

	var wg sync.WaitGroup
	results := make([][]core.Embedding, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _, errs[i] = p.ProcessBatch(context.Background(), []string{"x"}, testModel, provider.generate)
		}()
	}

	require.Eventually(t, func() bool { return provider.callsFor("x") == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(provider.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, provider.callsFor("x"))
	assert.Equal(t, results[0], results[1])
}

func TestProcessBatch_CacheShortCircuit(t *testing.T) {
	p, cache := newProcessor(t, memory.NewStore(0))
	provider := newFakeProvider()
	ctx := context.Background()

	cached := core.Embedding{9, 9, 9}
	cache.Save(ctx, core.HashContent("cached"), testModel, cached)

	embs, stats, err := p.ProcessBatch(ctx, []string{"cached", "new", "cached"}, testModel, provider.generate)
	require.NoError(t, err)

	assert.Equal(t, 0, provider.callsFor("cached"))
	assert.Equal(t, cached, embs[0])
	assert.Equal(t, cached, embs[2])
	assert.Equal(t, vectorFor("new"), embs[1])
	assert.Equal(t, Stats{Total: 3, Hits: 2, Misses: 1, GenerationCalls: 1}, stats)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 1e-9)

	t.Run("generated embeddings are cached", func(t *testing.T) {
		_, stats, err := p.ProcessBatch(ctx, []string{"new"}, testModel, provider.generate)
		require.NoError(t, err)
		assert.Equal(t, 1, provider.callsFor("new"))
		assert.Equal(t, 1, stats.Hits)
	})

	t.Run("cache is per model", func(t *testing.T) {
		_, stats, err := p.ProcessBatch(ctx, []string{"new"}, "other-model", provider.generate)
		require.NoError(t, err)
		assert.Equal(t, 2, provider.callsFor("new"))
		assert.Equal(t, 0, stats.Hits)
	})
}

func TestProcessBatch_DegradesWithBrokenCache(t *testing.T) {
	store := &brokenStore{}
	p, _ := newProcessor(t, store)
	provider := newFakeProvider()

	texts := []string{"one", "two", "one"}
	embs, stats, err := p.ProcessBatch(context.Background(), texts, testModel, provider.generate)
	require.NoError(t, err)

	for i, text := range texts {
		assert.Equal(t, vectorFor(text), embs[i])
	}
	assert.Equal(t, 0.0, stats.HitRate())
	assert.Equal(t, 2, stats.GenerationCalls)
	assert.Positive(t, store.calls.Load())
}

func TestProcessBatch_FailureIsAllOrNothing(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0))
	provider := newFakeProvider()
	providerErr := errors.New("rate limited")
	provider.fail["bad"] = providerErr

	embs, _, err := p.ProcessBatch(context.Background(), []string{"ok", "fine", "bad", "bad"}, testModel, provider.generate)
	require.Error(t, err)
	assert.Nil(t, embs)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, providerErr)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 2, genErr.Index)
	assert.Equal(t, core.HashContent("bad"), genErr.Hash)
	assert.Contains(t, err.Error(), "text 2")
}

func TestProcessBatch_EmptyInput(t *testing.T) {
	store := &brokenStore{}
	p, _ := newProcessor(t, store)
	provider := newFakeProvider()

	embs, stats, err := p.ProcessBatch(context.Background(), nil, testModel, provider.generate)
	require.NoError(t, err)
	assert.NotNil(t, embs)
	assert.Empty(t, embs)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, int32(0), store.calls.Load(), "no store traffic for an empty batch")
}

func TestProcessBatch_RejectsBadInput(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0))
	provider := newFakeProvider()

	_, _, err := p.ProcessBatch(context.Background(), []string{"a"}, "", provider.generate)
	assert.ErrorIs(t, err, core.ErrEmptyModel)

	_, _, err = p.ProcessBatch(context.Background(), []string{"a"}, testModel, nil)
	assert.ErrorIs(t, err, ErrGenerateFuncRequired)

	assert.Equal(t, 0, provider.totalCalls())
}

func TestProcessBatch_Retry(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0), WithRetry(3, time.Millisecond))

	var attempts atomic.Int32
	flaky := func(ctx context.Context, text string) (core.Embedding, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("temporary")
		}
		return vectorFor(text), nil
	}

	embs, stats, err := p.ProcessBatch(context.Background(), []string{"flaky"}, testModel, flaky)
	require.NoError(t, err)
	assert.Equal(t, vectorFor("flaky"), embs[0])
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 1, stats.GenerationCalls)
}

func TestProcessBatch_Dimensions(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0), WithDimensions(4))
	provider := newFakeProvider()

	_, _, err := p.ProcessBatch(context.Background(), []string{"short"}, testModel, provider.generate)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestProcessBatch_CancelledContext(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0))
	provider := newFakeProvider()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.ProcessBatch(ctx, []string{"a", "b"}, testModel, provider.generate)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunkBounds(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 2048}, {2048, 4096}, {4096, 5000}}, chunkBounds(5000, 2048))
	assert.Equal(t, [][2]int{{0, 3}}, chunkBounds(3, 2048))
	assert.Equal(t, [][2]int{{0, 2}, {2, 4}}, chunkBounds(4, 2))
	assert.Nil(t, chunkBounds(0, 2048))
}

func TestProcessBatchWithSplitting(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0))
	provider := newFakeProvider()
	require.Equal(t, DefaultProviderBatchLimit, p.ProviderBatchLimit())

	texts := make([]string, 5000)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	embs, stats, err := p.ProcessBatchWithSplitting(context.Background(), texts, testModel, provider.generate)
	require.NoError(t, err)

	require.Len(t, embs, 5000)
	for i, text := range texts {
		require.Equal(t, vectorFor(text), embs[i], "position %d", i)
	}
	assert.Equal(t, 5000, stats.Total)
	assert.Equal(t, 5000, stats.Misses)
	assert.Equal(t, 5000, stats.GenerationCalls)
}

func TestProcessBatchWithSplitting_SmallInputSingleBatch(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0), WithProviderBatchLimit(10))
	provider := newFakeProvider()

	embs, stats, err := p.ProcessBatchWithSplitting(context.Background(), []string{"a", "b", "a"}, testModel, provider.generate)
	require.NoError(t, err)
	assert.Len(t, embs, 3)
	assert.Equal(t, 2, stats.GenerationCalls)
}

func TestProcessBatchWithSplitting_FailureReportsGlobalIndex(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0), WithProviderBatchLimit(2))
	provider := newFakeProvider()
	provider.fail["d"] = errors.New("provider error")

	embs, _, err := p.ProcessBatchWithSplitting(context.Background(), []string{"a", "b", "c", "d", "e"}, testModel, provider.generate)
	require.Error(t, err)
	assert.Nil(t, embs)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 3, genErr.Index)
}

func TestProcessBatchWithSplitting_CrossChunkDuplicates(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0), WithProviderBatchLimit(2))
	provider := newFakeProvider()

	texts := []string{"same", "x", "same", "y", "same"}
	embs, _, err := p.ProcessBatchWithSplitting(context.Background(), texts, testModel, provider.generate)
	require.NoError(t, err)

	for i, text := range texts {
		assert.Equal(t, vectorFor(text), embs[i])
	}
	assert.Equal(t, 1, provider.callsFor("same"))
}

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32(vectorFor(text)), nil
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := s.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestFromEmbedder(t *testing.T) {
	_, err := FromEmbedder(nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	generate, err := FromEmbedder(&stubEmbedder{})
	require.NoError(t, err)
	emb, err := generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, vectorFor("hello"), emb)

	failing, err := FromEmbedder(&stubEmbedder{err: errors.New("down")})
	require.NoError(t, err)
	_, err = failing(context.Background(), "hello")
	assert.Error(t, err)
}

func TestProcessBatch_CallerEditsDoNotReachCache(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0))
	provider := newFakeProvider()
	ctx := context.Background()

	first, _, err := p.ProcessBatch(ctx, []string{"x"}, testModel, provider.generate)
	require.NoError(t, err)
	first[0][0] = -1

	second, stats, err := p.ProcessBatch(ctx, []string{"x"}, testModel, provider.generate)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, vectorFor("x"), second[0])

	second[0][1] = -1
	third, _, err := p.ProcessBatch(ctx, []string{"x"}, testModel, provider.generate)
	require.NoError(t, err)
	assert.Equal(t, vectorFor("x"), third[0])
	assert.Equal(t, 1, provider.callsFor("x"))
}

func TestProcessBatchWithSplitting_ChunksRunConcurrently(t *testing.T) {
	const chunks = 3
	p, _ := newProcessor(t, memory.NewStore(0), WithProviderBatchLimit(1), WithPoolSize(chunks))

	var (
		inFlight atomic.Int32
		peak     atomic.Int32
		allIn    = make(chan struct{})
		once     sync.Once
	)
	generate := func(ctx context.Context, text string) (core.Embedding, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		if n == chunks {
			once.Do(func() { close(allIn) })
		}
		select {
		case <-allIn:
		case <-time.After(2 * time.Second):
		}
		return vectorFor(text), nil
	}

	embs, stats, err := p.ProcessBatchWithSplitting(context.Background(), []string{"a", "b", "c"}, testModel, generate)
	require.NoError(t, err)
	require.Len(t, embs, chunks)
	assert.Equal(t, chunks, stats.GenerationCalls)
	assert.Equal(t, int32(chunks), peak.Load())
}

func TestNewProcessor_DefaultPoolSize(t *testing.T) {
	p, _ := newProcessor(t, memory.NewStore(0))
	assert.Equal(t, DefaultPoolSize, p.pool.Cap())

	sized, _ := newProcessor(t, memory.NewStore(0), WithPoolSize(2))
	assert.Equal(t, 2, sized.pool.Cap())
}
