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

// Package batch converts lists of texts into embeddings.
//
// A Processor hashes every text, prefetches the cache once for all distinct
// hashes, resolves the misses concurrently through a coalesce.Coalescer, and
// assembles the result in input order. ProcessBatchWithSplitting further
// splits very large inputs into provider sized chunks that run in parallel.
//
// Failure is all or nothing: one failed generation fails the whole call.
// Positions holding the same normalized text share one embedding slice;
// callers must not modify returned embeddings in place.
package batch
