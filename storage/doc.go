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

// Package storage provides the storage abstraction layer for kbsearch.
//
// Two boundaries are defined here:
//
//   - CacheStore: content-hash keyed embedding storage with insert-or-ignore
//     writes and batched lookups
//   - DocumentRepository: knowledge-base documents plus the two ranking
//     sources (vector similarity and keyword match) that search fuses
//
// # Backends
//
//   - storage/badger: embedded BadgerDB, implements both interfaces
//   - storage/sqlstore: database/sql CacheStore for PostgreSQL and SQLite
//   - storage/memory: process-local CacheStore
//   - storage/natskv: NATS JetStream KeyValue CacheStore
//
// # Miss versus failure
//
// CacheStore lookups report a miss as found=false with a nil error. A non-nil
// error always means the store itself could not answer. Callers that want to
// treat both the same way (see package embedcache) can, but the distinction is
// never lost at this boundary.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access from
// multiple goroutines. Concurrent Put calls for the same key must not fail.
package storage
