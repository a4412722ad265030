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

package core

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Content must contain non-whitespace text
//
// NOT validated (populated later):
//   - Vector (empty until the ingestion pipeline embeds it)
//   - ID (derived from content when zero)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	return nil
}

// ValidateEmbedding checks that an embedding is non-empty and, when dims is
// positive, that it has exactly dims components.
func ValidateEmbedding(e Embedding, dims int) error {
	if len(e) == 0 {
		return ErrEmptyEmbedding
	}
	if dims > 0 && len(e) != dims {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dims, len(e))
	}
	return nil
}

// ValidateCacheKey checks a (hash, model) cache key.
func ValidateCacheKey(hash ContentHash, model string) error {
	if !hash.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	if model == "" {
		return ErrEmptyModel
	}
	return nil
}
