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

package badger

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
// Closing the repository does not close the backend.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close is a no-op; the backend is owned by the caller.
func (r *DocumentRepository) Close() error {
	return nil
}

// AddDocuments stores documents, deriving IDs from content when unset.
func (r *DocumentRepository) AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	stored := make([]*core.Document, len(docs))
	err := r.backend.Update(func(tx *badger.Txn) error {
		for i, doc := range docs {
			if doc.ID == 0 {
				doc.ID = core.DocumentIDFromContent(doc.Content)
			}
			key := makeDocumentKey(doc.ID)

			existing, err := readDocument(tx, key)
			if err != nil {
				return err
			}
			if existing != nil {
				stored[i] = existing
				continue
			}

			doc.InsertedAt = time.Now().UTC()
			doc.UpdatedAt = doc.InsertedAt

			value, err := storage.MarshalDocument(doc)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
			stored[i] = doc
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// UpdateDocuments overwrites existing documents.
func (r *DocumentRepository) UpdateDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	err := r.backend.Update(func(tx *badger.Txn) error {
		for _, doc := range docs {
			key := makeDocumentKey(doc.ID)

			old, err := readDocument(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			doc.InsertedAt = old.InsertedAt
			doc.UpdatedAt = time.Now().UTC()

			value, err := storage.MarshalDocument(doc)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// DeleteDocuments removes documents by ID.
func (r *DocumentRepository) DeleteDocuments(ctx context.Context, ids ...core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeDocumentKey(id)
			if _, err := tx.Get(key); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return storage.ErrNotFound
				}
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, makeDocumentKey(id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

// GetDocuments retrieves documents by ID, skipping missing ones.
func (r *DocumentRepository) GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error) {
	docs := make([]*core.Document, 0, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := readDocument(tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// ListDocuments returns up to limit documents with ID > after, in ID order.
func (r *DocumentRepository) ListDocuments(ctx context.Context, after core.ID, limit int) ([]*core.Document, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var docs []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeDocumentKey(after)); iter.Valid() && len(docs) < limit; iter.Next() {
			id, ok := documentIDFromKey(iter.Item().Key())
			if !ok || id <= after {
				continue
			}
			doc, err := decodeItem(iter.Item())
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// CountDocuments counts stored documents with a key-only scan.
func (r *DocumentRepository) CountDocuments(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// FindSimilar scans all embedded documents and ranks them by cosine similarity.
func (r *DocumentRepository) FindSimilar(ctx context.Context, vector core.Embedding, minSimilarity float32, limit int) ([]core.ScoredEntry, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []core.ScoredEntry
	err := r.forEachDocument(ctx, func(doc *core.Document) {
		// Skip documents without embeddings or from a model with other dimensions
		if len(doc.Vector) != len(vector) {
			return
		}
		similarity := cosineSimilarity(vector, doc.Vector)
		if similarity >= minSimilarity {
			results = append(results, core.ScoredEntryFromDocument(doc, float64(similarity)))
		}
	})
	if err != nil {
		return nil, err
	}

	return topN(results, limit), nil
}

// SearchKeyword ranks documents by a TF-IDF score over the query's terms.
func (r *DocumentRepository) SearchKeyword(ctx context.Context, query string, limit int) ([]core.ScoredEntry, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	terms := core.Tokenize(query)
	if len(terms) == 0 {
		return []core.ScoredEntry{}, nil
	}

	type candidate struct {
		doc  *core.Document
		freq map[string]int
	}

	var (
		candidates []candidate
		total      int
		docFreq    = make(map[string]int, len(terms))
	)
	err := r.forEachDocument(ctx, func(doc *core.Document) {
		total++
		freq := core.TermFrequencies(doc.Content)
		matched := false
		for _, term := range terms {
			if freq[term] > 0 {
				matched = true
				docFreq[term]++
			}
		}
		if matched {
			candidates = append(candidates, candidate{doc: doc, freq: freq})
		}
	})
	if err != nil {
		return nil, err
	}

	results := make([]core.ScoredEntry, 0, len(candidates))
	for _, c := range candidates {
		var score float64
		for _, term := range terms {
			tf := c.freq[term]
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + float64(total)/float64(docFreq[term]))
			score += (1 + math.Log(float64(tf))) * idf
		}
		results = append(results, core.ScoredEntryFromDocument(c.doc, score))
	}

	return topN(results, limit), nil
}

// forEachDocument decodes every stored document in ID order.
func (r *DocumentRepository) forEachDocument(ctx context.Context, fn func(doc *core.Document)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := decodeItem(iter.Item())
			if err != nil {
				return err
			}
			fn(doc)
		}
		return nil
	}, false)
}

// topN sorts by score descending, keeping scan order for ties, and truncates.
func topN(results []core.ScoredEntry, limit int) []core.ScoredEntry {
	slices.SortStableFunc(results, func(a, b core.ScoredEntry) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []core.ScoredEntry{}
	}
	return results
}

// readDocument reads a document by key. A missing key yields nil, nil.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeItem(item)
}

func decodeItem(item *badger.Item) (*core.Document, error) {
	var doc *core.Document
	err := item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}
