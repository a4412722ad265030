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

package kbsearch

import (
	"fmt"

	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/ai/httpembed"
	"github.com/poiesic/kbsearch/ai/mock"
	"github.com/poiesic/kbsearch/ai/openai"
)

// NewProvider builds the embedding provider named by config.Provider.
// The config is validated (and normalized) first.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if config == nil {
		config = ai.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case ai.ProviderLangChain:
		return openai.NewProvider(config)
	case ai.ProviderHTTP:
		return httpembed.NewProvider(config)
	case ai.ProviderMock:
		embedder := mock.NewMockEmbedder()
		if config.Dimensions > 0 {
			embedder.Dimensions = config.Dimensions
		}
		return mock.NewMockProviderWithEmbedder(embedder, config.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}
}
