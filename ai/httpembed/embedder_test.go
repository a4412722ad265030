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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/kbsearch/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// newServer answers /v1/embeddings with vector {len(text), i} per input.
// reverse makes the service answer in reverse order.
func newServer(t *testing.T, reverse bool, requests *[]embeddingRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if requests != nil {
			*requests = append(*requests, req)
		}

		data := make([]embeddingData, len(req.Input))
		for i, text := range req.Input {
			data[i] = embeddingData{
				Object:    "embedding",
				Embedding: []float32{float32(len(text)), float32(i)},
				Index:     i,
			}
		}
		if reverse {
			for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
				data[i], data[j] = data[j], data[i]
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestConfig(host string) *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(ai.ProviderHTTP),
		ai.WithEmbeddingHost(host),
		ai.WithEmbeddingModel("test-model"),
	)
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	var requests []embeddingRequest
	srv := newServer(t, false, &requests)

	e, err := NewEmbedder(newTestConfig(srv.URL))
	require.NoError(t, err)

	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {3, 1}}, vecs)

	require.Len(t, requests, 1)
	assert.Equal(t, "test-model", requests[0].Model)
	assert.Equal(t, []string{"a", "bbb"}, requests[0].Input)
}

func TestEmbedder_OrdersByIndex(t *testing.T) {
	srv := newServer(t, true, nil)

	e, err := NewEmbedder(newTestConfig(srv.URL))
	require.NoError(t, err)

	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {2, 1}, {3, 2}}, vecs)
}

func TestEmbedder_EmbedText(t *testing.T) {
	srv := newServer(t, false, nil)

	e, err := NewEmbedder(newTestConfig(srv.URL))
	require.NoError(t, err)

	vec, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0}, vec)
}

func TestEmbedder_EmptyInput(t *testing.T) {
	e, err := NewEmbedder(newTestConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	vecs, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	e, err := NewEmbedder(newTestConfig(srv.URL))
	require.NoError(t, err)

	_, err = e.EmbedTexts(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestProvider(t *testing.T) {
	p, err := NewProvider(newTestConfig("http://localhost:8080"))
	require.NoError(t, err)
	assert.Equal(t, "test-model", p.Model())
	assert.NotNil(t, p.Embedder())
	assert.NoError(t, p.Close())

	_, err = NewProvider(ai.NewConfig(ai.WithEmbeddingModel("")))
	assert.Error(t, err)
}
