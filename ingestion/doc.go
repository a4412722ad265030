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

// Package ingestion provides the document ingestion pipeline for kbsearch.
//
// The pipeline handles:
//   - Adding documents to storage
//   - Generating embeddings asynchronously through the batch processor
//
// Documents are stored before Ingest returns; their vectors arrive later.
// Each call returns a Job that settles once its embeddings are written.
package ingestion
