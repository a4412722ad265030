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

// Package embedcache provides the content-hash keyed embedding cache used by
// the batch processor.
//
// The Cache type sits in front of any storage.CacheStore and offers three
// operations:
//   - Get / Lookup: a single (hash, model) lookup
//   - Prefetch: one batched lookup whose result holds only hits
//   - Save: a best-effort insert-or-ignore write
//
// The cache is an optimization, never a dependency. A store that times out,
// loses its connection or panics is logged and treated as empty, so the
// pipeline stays correct (only slower) with no working cache at all.
// Lookup keeps the distinction between a miss and an unavailable store
// visible to callers that care.
package embedcache
