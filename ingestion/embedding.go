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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/kbsearch/batch"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// embeddingProcessor generates embeddings for stored documents.
type embeddingProcessor struct {
	repository storage.DocumentRepository
	processor  *batch.Processor
	generate   batch.GenerateFunc
	model      string
	logger     *slog.Logger
}

// process embeds the documents identified by ids and writes the vectors
// back. Missing documents are skipped.
func (ep *embeddingProcessor) process(ctx context.Context, ids ...core.ID) (batch.Stats, error) {
	ep.logger.Info("processing documents for embeddings", "documents", len(ids))

	slices.Sort(ids)

	docs, err := ep.repository.GetDocuments(ctx, ids...)
	if err != nil {
		ep.logger.Error("error retrieving documents", "err", err)
		return batch.Stats{}, err
	}
	if len(docs) == 0 {
		return batch.Stats{}, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	ep.logger.Debug("generating embeddings for documents", "documents", len(texts))
	vectors, stats, err := ep.processor.ProcessBatchWithSplitting(ctx, texts, ep.model, ep.generate)
	if err != nil {
		ep.logger.Error("error generating embeddings", "err", err)
		return stats, err
	}

	if len(vectors) != len(docs) {
		return stats, fmt.Errorf("embedding result mismatch. expected %d, received %d", len(docs), len(vectors))
	}

	for i := range vectors {
		docs[i].Vector = vectors[i]
		docs[i].Model = ep.model
	}

	if _, err := ep.repository.UpdateDocuments(ctx, docs...); err != nil {
		return stats, err
	}
	return stats, nil
}
