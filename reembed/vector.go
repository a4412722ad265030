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

package reembed

import (
	"math"

	"github.com/poiesic/kbsearch/core"
)

// NormalizeVector returns a unit-length copy of v. The input is not
// modified. A zero vector normalizes to a zero vector of the same length.
func NormalizeVector(v core.Embedding) core.Embedding {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	result := make(core.Embedding, len(v))
	if sumSquares == 0 {
		return result
	}

	scale := 1 / math.Sqrt(sumSquares)
	for i, val := range v {
		result[i] = float32(float64(val) * scale)
	}
	return result
}
