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

package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/poiesic/kbsearch/core"
)

// EncodeVector packs an embedding as little-endian float32s.
func EncodeVector(v core.Embedding) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks the output of EncodeVector.
func DecodeVector(data []byte) (core.Embedding, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: vector blob of %d bytes", ErrTruncatedData, len(data))
	}
	v := make(core.Embedding, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

// MarshalCacheValue serializes the value half of a cache entry:
// an 8 byte creation timestamp followed by the packed vector.
func MarshalCacheValue(entry *core.CacheEntry) []byte {
	buf := make([]byte, 8, 8+len(entry.Embedding)*4)
	binary.BigEndian.PutUint64(buf, uint64(entry.CreatedAt.UnixNano()))
	return append(buf, EncodeVector(entry.Embedding)...)
}

// UnmarshalCacheValue deserializes the output of MarshalCacheValue.
func UnmarshalCacheValue(data []byte) (core.Embedding, time.Time, error) {
	if len(data) < 8 {
		return nil, time.Time{}, fmt.Errorf("%w: cache value of %d bytes", ErrTruncatedData, len(data))
	}
	created := time.Unix(0, int64(binary.BigEndian.Uint64(data[:8]))).UTC()
	v, err := DecodeVector(data[8:])
	if err != nil {
		return nil, time.Time{}, err
	}
	return v, created, nil
}

// documentRecord is the persisted form of core.Document.
type documentRecord struct {
	ID         uint64            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Vector     []byte            `json:"vector,omitempty"`
	Model      string            `json:"model,omitempty"`
	InsertedAt time.Time         `json:"inserted_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	rec := documentRecord{
		ID:         uint64(doc.ID),
		Content:    doc.Content,
		Metadata:   doc.Metadata,
		Model:      doc.Model,
		InsertedAt: doc.InsertedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	if len(doc.Vector) > 0 {
		rec.Vector = EncodeVector(doc.Vector)
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	var rec documentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	doc := &core.Document{
		ID:         core.ID(rec.ID),
		Content:    rec.Content,
		Metadata:   rec.Metadata,
		Model:      rec.Model,
		InsertedAt: rec.InsertedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	if len(rec.Vector) > 0 {
		v, err := DecodeVector(rec.Vector)
		if err != nil {
			return nil, err
		}
		doc.Vector = v
	}
	return doc, nil
}
