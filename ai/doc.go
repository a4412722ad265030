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

// Package ai provides abstractions for the embedding services used by
// kbsearch.
//
// The package defines the Embedder and Provider interfaces plus the shared
// Config. Everything above it (batch processing, ingestion, search) depends
// on these abstractions rather than on a concrete client.
//
// # Implementation Packages
//
//   - ai/openai: langchaingo client for OpenAI-compatible endpoints
//   - ai/httpembed: go-openai client for the same endpoints, used by
//     services such as TEI or LocalAI
//   - ai/mock: deterministic test doubles
//
// # Constructor Return Type Pattern
//
// Production constructors (openai.NewProvider, httpembed.NewProvider) return
// interface types. Mock constructors return concrete types so tests can use
// CallCount, TextCount and the injectable function fields; the exception is
// mock.NewMockProvider, which returns ai.Provider and offers GetMockEmbedder
// for assertions.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("nomic-embed-text"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "Hello world")
package ai
