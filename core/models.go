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
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for stored documents.
type ID uint64

// DocumentIDFromContent generates a deterministic ID from document content
// using BLAKE2b hashing. Content is normalized first, so documents that only
// differ in whitespace share an ID.
func DocumentIDFromContent(content string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(Normalize(content)))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width hex. This is the form used as the
// entry id in ranked result lists.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseID parses the output of ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(v), nil
}

// Embedding is a fixed-dimension vector produced by an embedding model.
// Only presence or absence is meaningful; embeddings are never compared
// for equality.
type Embedding []float32

// Dimensions returns the vector length.
func (e Embedding) Dimensions() int {
	return len(e)
}

// CacheEntry is a cached embedding keyed by (Hash, Model).
// The embedding never changes after the first successful write.
type CacheEntry struct {
	Hash      ContentHash
	Model     string
	Embedding Embedding
	CreatedAt time.Time
}

// Document is a unit of stored knowledge-base content.
type Document struct {
	ID         ID
	Content    string
	Metadata   map[string]string
	Vector     Embedding // populated by the ingestion pipeline
	Model      string    // model that produced Vector
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// ScoredEntry is one result from a single ranking source. Score is local to
// the source and is not comparable across sources.
type ScoredEntry struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// RankedEntry is one fused result. Ranks are 1-based positions in the source
// lists; zero means the entry was absent from that list.
type RankedEntry struct {
	ID           string            `json:"id"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Score        float64           `json:"score"`
	SemanticRank int               `json:"semantic_rank,omitempty"`
	KeywordRank  int               `json:"keyword_rank,omitempty"`
}

// ScoredEntryFromDocument converts a document hit into a ScoredEntry.
func ScoredEntryFromDocument(doc *Document, score float64) ScoredEntry {
	return ScoredEntry{
		ID:       doc.ID.String(),
		Content:  doc.Content,
		Metadata: doc.Metadata,
		Score:    score,
	}
}
