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
	"fmt"
	"time"

	"github.com/poiesic/kbsearch/batch"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// BatchEmbedder re-embeds one page of documents and writes it back.
type BatchEmbedder struct {
	repo           storage.DocumentRepository
	processor      *batch.Processor
	generate       batch.GenerateFunc
	model          string
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchEmbedder creates a new batch embedder.
// maxRetries: maximum number of attempts per provider call and per write
// retryBaseDelay: base delay for exponential backoff
func NewBatchEmbedder(
	repo storage.DocumentRepository,
	processor *batch.Processor,
	generate batch.GenerateFunc,
	model string,
	maxRetries int,
	retryBaseDelay time.Duration,
) *BatchEmbedder {
	return &BatchEmbedder{
		repo:           repo,
		processor:      processor,
		generate:       batch.Retrying(generate, maxRetries, retryBaseDelay),
		model:          model,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process generates embeddings for docs and updates them in the repository.
// Vectors are normalized after embedding to ensure compatibility with cosine
// similarity.
func (be *BatchEmbedder) Process(ctx context.Context, docs []*core.Document) (batch.Stats, error) {
	if len(docs) == 0 {
		return batch.Stats{}, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, stats, err := be.processor.ProcessBatchWithSplitting(ctx, texts, be.model, be.generate)
	if err != nil {
		return stats, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(vectors) != len(docs) {
		return stats, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(docs), len(vectors))
	}

	// Normalize vectors and assign to documents
	for i := range docs {
		docs[i].Vector = NormalizeVector(vectors[i])
		docs[i].Model = be.model
	}

	err = batch.RetryWithBackoff(ctx, func() error {
		_, err := be.repo.UpdateDocuments(ctx, docs...)
		return err
	}, be.maxRetries, be.retryBaseDelay)
	if err != nil {
		return stats, fmt.Errorf("failed to update documents: %w", err)
	}

	return stats, nil
}
