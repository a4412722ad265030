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

// Package search implements hybrid retrieval over a document repository.
//
// A query is embedded through the batch processor, so repeated queries hit
// the embedding cache and concurrent identical queries share one provider
// call. The repository then produces two ranked lists, one by vector
// similarity and one by keyword score, and the lists are merged with
// Reciprocal Rank Fusion. Raw scores from the two sources are never
// compared; only ranks matter.
package search
