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

package ai

import (
	"errors"
	"strings"
	"time"
)

// Provider names accepted by Config.Provider.
const (
	// ProviderLangChain talks to the embedding host through langchaingo.
	ProviderLangChain = "langchain"
	// ProviderHTTP talks to the embedding host through go-openai with an
	// explicit HTTP timeout and API key.
	ProviderHTTP = "http"
	// ProviderMock generates deterministic vectors locally.
	ProviderMock = "mock"
)

// Config holds configuration for embedding providers.
type Config struct {
	// Provider selects the client implementation.
	// One of ProviderLangChain, ProviderHTTP or ProviderMock.
	Provider string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// It is also half of every embedding cache key.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// APIKey authenticates against hosted services. Local servers ignore it.
	APIKey string

	// RequestTimeout bounds a single embedding request.
	// Default: 30s
	RequestTimeout time.Duration

	// Dimensions is the expected vector length. Zero skips the check.
	Dimensions int

	// BatchLimit is the most texts the provider accepts in one request.
	// Default: 2048
	BatchLimit int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the provider implementation.
func WithProvider(name string) ConfigOption {
	return func(c *Config) {
		c.Provider = name
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithDimensions sets the expected embedding dimensionality.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithBatchLimit sets the provider's per-request text limit.
func WithBatchLimit(limit int) ConfigOption {
	return func(c *Config) {
		c.BatchLimit = limit
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible service.
func DefaultConfig() *Config {
	return &Config{
		Provider:       ProviderLangChain,
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: "embeddinggemma",
		RequestTimeout: 30 * time.Second,
		BatchLimit:     2048,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("https://api.openai.com/v1"),
//	    WithProvider(ProviderHTTP),
//	    WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to the host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderLangChain
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderLangChain, ProviderHTTP, ProviderMock:
	default:
		return errors.New("ai config: Provider must be one of langchain, http, mock")
	}
	if c.EmbeddingHost == "" && c.Provider != ProviderMock {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout must not be negative")
	}
	if c.Dimensions < 0 {
		return errors.New("ai config: Dimensions must not be negative")
	}
	if c.BatchLimit < 1 {
		return errors.New("ai config: BatchLimit must be at least 1")
	}
	return nil
}
