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
	"github.com/poiesic/kbsearch/batch"
	"github.com/poiesic/kbsearch/core"
)

// SearchMonitor receives a callback after each stage of a search.
// Callbacks run on the searching goroutine.
type SearchMonitor interface {
	Start(query string)
	AfterQueryEmbedding(stats batch.Stats)
	AfterSemanticSearch(entries []core.ScoredEntry)
	AfterKeywordSearch(entries []core.ScoredEntry)
	AfterFusion(fused []core.RankedEntry)
	Finish(results []core.RankedEntry)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                           {}
func (n *noopMonitor) AfterQueryEmbedding(_ batch.Stats)        {}
func (n *noopMonitor) AfterSemanticSearch(_ []core.ScoredEntry) {}
func (n *noopMonitor) AfterKeywordSearch(_ []core.ScoredEntry)  {}
func (n *noopMonitor) AfterFusion(_ []core.RankedEntry)         {}
func (n *noopMonitor) Finish(_ []core.RankedEntry)              {}
