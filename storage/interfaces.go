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

package storage

import (
	"context"

	"github.com/poiesic/kbsearch/core"
)

// CacheStore persists embeddings keyed by (content hash, model).
// Implementations must be thread-safe and support concurrent access.
type CacheStore interface {
	// Get looks up a single embedding.
	// A miss returns (nil, false, nil). A non-nil error means the store
	// could not answer, never that the key is absent.
	Get(ctx context.Context, hash core.ContentHash, model string) (core.Embedding, bool, error)

	// GetMany looks up many hashes in one round trip.
	// The returned map contains only hits.
	GetMany(ctx context.Context, hashes []core.ContentHash, model string) (map[core.ContentHash]core.Embedding, error)

	// Put stores an entry with insert-or-ignore semantics: if the key already
	// exists the call is a successful no-op and the existing value wins.
	Put(ctx context.Context, entry *core.CacheEntry) error

	// Close releases resources held by the store.
	Close() error
}

// DocumentRepository stores knowledge-base documents and serves the two
// ranking sources that hybrid search fuses.
type DocumentRepository interface {
	// AddDocuments stores documents. Documents with ID=0 get a content-derived
	// ID. A document whose ID already exists is left untouched and the stored
	// copy is returned in its place.
	AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// UpdateDocuments overwrites existing documents and bumps UpdatedAt.
	// Returns ErrNotFound if any document doesn't exist.
	UpdateDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// DeleteDocuments removes documents by ID.
	// Returns ErrNotFound if any document doesn't exist.
	DeleteDocuments(ctx context.Context, ids ...core.ID) error

	// GetDocument retrieves a single document.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocuments retrieves documents by ID, skipping missing ones.
	GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error)

	// ListDocuments returns up to limit documents with ID > after, in ID order.
	ListDocuments(ctx context.Context, after core.ID, limit int) ([]*core.Document, error)

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int, error)

	// FindSimilar returns documents whose vector similarity to the given
	// vector is >= minSimilarity, best first, up to limit results.
	FindSimilar(ctx context.Context, vector core.Embedding, minSimilarity float32, limit int) ([]core.ScoredEntry, error)

	// SearchKeyword returns documents matching the keyword terms of query,
	// best first, up to limit results.
	SearchKeyword(ctx context.Context, query string, limit int) ([]core.ScoredEntry, error)

	// Close releases resources held by the repository.
	Close() error
}
