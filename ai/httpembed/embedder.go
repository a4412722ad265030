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

package httpembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/kbsearch/ai"
	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResult is returned when the service answers with no vectors.
var ErrEmptyResult = errors.New("embedding service returned empty result")

// Embedder calls an OpenAI-compatible embedding endpoint over HTTP.
type Embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *slog.Logger
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = "dummy-key" // local services ignore the key
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = config.EmbeddingHost
	clientConfig.HTTPClient = &http.Client{Timeout: config.RequestTimeout}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      config.EmbeddingModel,
		dimensions: config.Dimensions,
		logger:     slog.Default().With("component", "http-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder creates an embedder for config.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors[0]) == 0 {
		return nil, ErrEmptyResult
	}
	return vectors[0], nil
}

// EmbedTexts sends texts in a single request and returns the vectors in
// input order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	e.logger.Debug("requesting embeddings", "count", len(texts))

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		e.logger.Error("embedding request failed", "count", len(texts), "err", err)
		return nil, fmt.Errorf("embedding API call failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResult
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("API returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	// Services are allowed to answer out of order; Index is authoritative.
	vectors := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) || vectors[idx] != nil {
			idx = i
		}
		vectors[idx] = data.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("API returned no embedding for text %d", i)
		}
	}
	return vectors, nil
}
