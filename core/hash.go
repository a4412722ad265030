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
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash is the lowercase hex SHA-256 digest of normalized text.
// It is the identity key for embedding caching and request deduplication.
type ContentHash string

// ContentHashLength is the length of a hex encoded SHA-256 digest.
const ContentHashLength = sha256.Size * 2

// Normalize trims leading and trailing whitespace and collapses every run of
// internal whitespace to a single space. Case is preserved.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// HashContent returns the ContentHash of text after normalization.
// Texts that normalize to the same string always share a hash.
func HashContent(text string) ContentHash {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return ContentHash(hex.EncodeToString(sum[:]))
}

// String returns the hash as a plain string.
func (h ContentHash) String() string {
	return string(h)
}

// Valid reports whether h looks like a lowercase hex SHA-256 digest.
func (h ContentHash) Valid() bool {
	if len(h) != ContentHashLength {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
