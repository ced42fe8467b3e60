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

// Package query answers questions from stored passages.
//
// The Pipeline type runs retrieval-augmented generation in two stages:
//   - Retrieve embeds the question and searches the vector store
//   - Generate renders a grounding prompt and asks the model for an answer
//
// A question with no matching passages is still sent to the model with an
// empty context section.
package query
