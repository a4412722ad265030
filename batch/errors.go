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

package batch

import (
	"errors"
	"fmt"

	"github.com/poiesic/kbsearch/core"
)

var (
	// ErrCacheRequired is returned when an embedding cache is not provided.
	ErrCacheRequired = errors.New("embedding cache required")

	// ErrCoalescerRequired is returned when a coalescer is not provided.
	ErrCoalescerRequired = errors.New("coalescer required")

	// ErrGenerateFuncRequired is returned when no generation function is given.
	ErrGenerateFuncRequired = errors.New("generate function required")

	// ErrEmbedderRequired is returned by FromEmbedder for a nil embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrGenerationFailed is matched by every GenerationError.
	ErrGenerationFailed = errors.New("embedding generation failed")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidBatchLimit is returned for a non-positive provider batch limit.
	ErrInvalidBatchLimit = errors.New("provider batch limit must be greater than 0")
)

// GenerationError reports the text whose generation failed a batch. Index is
// the first input position holding that text.
type GenerationError struct {
	Index int
	Hash  core.ContentHash
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate embedding for text %d (hash %s): %v", e.Index, e.Hash, e.Err)
}

// Unwrap exposes both ErrGenerationFailed and the provider error.
func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Err}
}
