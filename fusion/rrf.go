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

// Package fusion merges a semantic and a keyword result list with
// Reciprocal Rank Fusion.
//
// Each entry scores
//
//	semanticWeight/(k+semanticRank) + keywordWeight/(k+keywordRank)
//
// where a term is dropped when the entry is absent from that list. Only
// ranks matter; the source scores are never compared.
package fusion

import (
	"fmt"
	"math"
	"slices"

	"github.com/poiesic/kbsearch/core"
)

// DefaultK is the rank offset used by DefaultConfig.
const DefaultK = 60

// Config holds the fusion weights and rank offset.
type Config struct {
	SemanticWeight float64 `json:"semantic_weight"`
	KeywordWeight  float64 `json:"keyword_weight"`
	K              float64 `json:"k"`
}

// DefaultConfig weighs both lists equally with k=60.
func DefaultConfig() Config {
	return Config{
		SemanticWeight: 1,
		KeywordWeight:  1,
		K:              DefaultK,
	}
}

// Validate checks that k is positive, that both weights are finite and
// non-negative, and that at least one weight is positive.
func (c Config) Validate() error {
	if math.IsNaN(c.K) || math.IsInf(c.K, 0) || c.K <= 0 {
		return fmt.Errorf("%w: k must be a positive number, got %v", ErrInvalidConfig, c.K)
	}
	if !validWeight(c.SemanticWeight) {
		return fmt.Errorf("%w: semantic weight must be a non-negative number, got %v", ErrInvalidConfig, c.SemanticWeight)
	}
	if !validWeight(c.KeywordWeight) {
		return fmt.Errorf("%w: keyword weight must be a non-negative number, got %v", ErrInvalidConfig, c.KeywordWeight)
	}
	if c.SemanticWeight == 0 && c.KeywordWeight == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidConfig)
	}
	return nil
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w >= 0
}

// candidate accumulates one id's ranks across both lists.
type candidate struct {
	entry    core.RankedEntry
	sources  int // lists with a positive weight that contain the id
	bestRank int
	order    int // first-seen position, semantic list first
}

// Fuse merges semantic and keyword results, both ordered best first, into
// one ranking ordered by fused score.
//
// Ordering rules, in priority order:
//  1. an id found in both lists ranks above an id found in only one
//  2. higher fused score
//  3. lower best rank across the two lists
//  4. first appearance, scanning the semantic list and then the keyword list
//
// Rule 1 agrees with plain score order for any realistic list length; it is
// applied explicitly so it also holds for very deep lists.
//
// Within a list only the first occurrence of an id counts. When an id is in
// both lists, its content and metadata come from the semantic copy.
// An invalid config is reported before any work; empty lists are valid and
// two empty lists fuse to an empty, non-nil slice.
func Fuse(semantic, keyword []core.ScoredEntry, cfg Config) ([]core.RankedEntry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	byID := make(map[string]*candidate, len(semantic)+len(keyword))
	candidates := make([]*candidate, 0, len(semantic)+len(keyword))

	add := func(list []core.ScoredEntry, weight float64, semanticList bool) {
		seen := make(map[string]struct{}, len(list))
		for i, e := range list {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			rank := i + 1

			c, ok := byID[e.ID]
			if !ok {
				c = &candidate{
					entry: core.RankedEntry{
						ID:       e.ID,
						Content:  e.Content,
						Metadata: e.Metadata,
					},
					bestRank: rank,
					order:    len(candidates),
				}
				byID[e.ID] = c
				candidates = append(candidates, c)
			}

			if semanticList {
				c.entry.SemanticRank = rank
			} else {
				c.entry.KeywordRank = rank
			}
			if weight > 0 {
				c.entry.Score += weight / (cfg.K + float64(rank))
				c.sources++
			}
			c.bestRank = min(c.bestRank, rank)
		}
	}
	add(semantic, cfg.SemanticWeight, true)
	add(keyword, cfg.KeywordWeight, false)

	slices.SortFunc(candidates, func(a, b *candidate) int {
		if a.sources != b.sources {
			return b.sources - a.sources
		}
		if a.entry.Score != b.entry.Score {
			if a.entry.Score > b.entry.Score {
				return -1
			}
			return 1
		}
		if a.bestRank != b.bestRank {
			return a.bestRank - b.bestRank
		}
		return a.order - b.order
	})

	out := make([]core.RankedEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out, nil
}
