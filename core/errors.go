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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidID indicates an ID string could not be parsed.
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidHash indicates a ContentHash is not a hex SHA-256 digest.
	ErrInvalidHash = errors.New("invalid content hash")

	// ErrEmptyEmbedding indicates an embedding has no dimensions.
	ErrEmptyEmbedding = errors.New("embedding cannot be empty")

	// ErrDimensionMismatch indicates an embedding has the wrong length for its model.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyModel indicates a model name was not provided.
	ErrEmptyModel = errors.New("model cannot be empty")
)
