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

package reembed

import (
	"context"

	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

const (
	// DefaultBatchSize is the default number of documents to fetch in each batch
	DefaultBatchSize = 100
)

// DocumentIterator pages through all documents in ID order.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents to fetch in each batch; values <= 0 use
// DefaultBatchSize.
func NewDocumentIterator(repo storage.DocumentRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each page of documents.
// Iteration stops on the first error from fn or when all documents are
// processed. Context cancellation is checked between pages. Documents added
// with an ID above the current cursor while iterating are visited too.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	var after core.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		docs, err := it.repo.ListDocuments(ctx, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}

		if err := fn(docs); err != nil {
			return err
		}

		if len(docs) < it.batchSize {
			return nil
		}
		after = docs[len(docs)-1].ID
	}
}
