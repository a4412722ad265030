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

// Package reembed rebuilds the vectors of every stored document.
//
// It is used after switching embedding models. Documents are read in ID
// order, a page at a time, and each page goes through the batch processor,
// so texts shared between documents are embedded once and the embedding
// cache is filled for the new model as a side effect. Vectors are normalized
// to unit length before they are written back.
package reembed
