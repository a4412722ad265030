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

package mock

import "github.com/poiesic/kbsearch/ai"

// DefaultModel is the model name reported by NewMockProvider.
const DefaultModel = "mock-embedding"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	embedder *MockEmbedder
	model    string
	closed   bool
}

// NewMockProvider creates a new mock provider with a default mock embedder.
//
// Returns ai.Provider interface for consistency with production constructors.
// Use GetMockEmbedder() to access the concrete type for test assertions.
func NewMockProvider() ai.Provider {
	return &MockProvider{
		embedder: NewMockEmbedder(),
		model:    DefaultModel,
	}
}

// NewMockProviderWithEmbedder creates a mock provider around a custom
// embedder and model name.
func NewMockProviderWithEmbedder(embedder *MockEmbedder, model string) ai.Provider {
	if model == "" {
		model = DefaultModel
	}
	return &MockProvider{
		embedder: embedder,
		model:    model,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Model returns the configured model name.
func (p *MockProvider) Model() string {
	return p.model
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}
