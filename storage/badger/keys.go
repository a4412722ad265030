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

package badger

import (
	"encoding/binary"

	"github.com/poiesic/kbsearch/core"
)

// Key prefixes for different data types
const (
	documentPrefix   = "doc:"
	cacheEntryPrefix = "embc:"
)

// makeDocumentKey generates a key for a document by ID.
// Format: prefix + 8 byte big endian ID, so iteration order is ID order.
func makeDocumentKey(id core.ID) []byte {
	buf := make([]byte, len(documentPrefix)+8)
	offset := copy(buf, documentPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// documentIDFromKey extracts the ID from a document key.
func documentIDFromKey(key []byte) (core.ID, bool) {
	if len(key) != len(documentPrefix)+8 {
		return 0, false
	}
	return core.ID(binary.BigEndian.Uint64(key[len(documentPrefix):])), true
}

// makeCacheKey generates a key for a cached embedding.
// Format: prefix:model:hash. The hash has a fixed length, so a model name
// containing ':' cannot make two keys collide.
func makeCacheKey(model string, hash core.ContentHash) []byte {
	totalSize := len(cacheEntryPrefix) + len(model) + 1 + len(hash)
	buf := make([]byte, totalSize)
	offset := copy(buf, cacheEntryPrefix)
	offset += copy(buf[offset:], model)
	buf[offset] = ':'
	offset++
	copy(buf[offset:], hash)
	return buf
}
