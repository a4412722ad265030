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
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Stop words dropped from keyword queries and documents
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true,
}

// Tokenize splits text into case-folded keyword terms. Text is NFKC
// normalized, split on anything that is not a letter or digit, and stop
// words are removed. Hashing never uses this; it only feeds keyword search.
func Tokenize(text string) []string {
	// Casers carry state and are not safe to share between goroutines.
	folded := cases.Fold().String(norm.NFKC.String(text))

	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	filtered := make([]string, 0, len(words))
	for _, word := range words {
		if !stopWords[word] {
			filtered = append(filtered, word)
		}
	}
	return filtered
}

// TermFrequencies counts each term of Tokenize(text).
func TermFrequencies(text string) map[string]int {
	terms := Tokenize(text)
	freq := make(map[string]int, len(terms))
	for _, term := range terms {
		freq[term]++
	}
	return freq
}
