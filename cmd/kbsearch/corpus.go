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

package main

// sampleCorpus is stored by the seed command.
var sampleCorpus = []string{
	"BadgerDB is an embeddable key-value store written in Go.",
	"Reciprocal Rank Fusion combines ranked lists without comparing raw scores.",
	"A content hash identifies text after whitespace normalization.",
	"Singleflight lets concurrent callers share one in-flight function call.",
	"Cosine similarity measures the angle between two embedding vectors.",
	"BM25 and TF-IDF rank documents by how often query terms appear.",
	"An embedding cache keyed by content hash and model avoids repeat provider calls.",
	"JetStream key-value buckets replicate small values across a NATS cluster.",
	"Prometheus scrapes counters, gauges and histograms over HTTP.",
	"A worker pool bounds how many goroutines run at once.",
	"Exponential backoff doubles the wait between retry attempts.",
	"PostgreSQL supports upserts with ON CONFLICT DO NOTHING.",
	"SQLite serializes writers, so a single connection avoids busy errors.",
	"Unit-length vectors make cosine similarity equal to the dot product.",
	"Hybrid search merges semantic similarity with keyword matching.",
	"Structured logs carry key-value attributes instead of formatted strings.",
	"A singleflight key must include the model so models never share results.",
	"Batch splitting keeps every provider request under its size limit.",
	"Graceful degradation means a failing cache behaves like an empty one.",
	"Document IDs derived from content make re-ingestion idempotent.",
}
