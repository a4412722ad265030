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

// Package httpembed implements ai.Provider on top of the go-openai client.
//
// It talks to any service exposing the OpenAI /embeddings endpoint: Hugging
// Face TEI, LocalAI, Ollama's compatibility layer or OpenAI itself. Unlike
// ai/openai it sends one request per EmbedTexts call and leaves request
// sizing to the caller, which in kbsearch is the batch processor.
package httpembed
