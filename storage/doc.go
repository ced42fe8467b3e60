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

// Package storage provides the storage abstraction layer for ragflow.
//
// Three contracts are defined here:
//
//   - VectorStore: collection-scoped points with filtered similarity search
//   - StepStore: write-once memoization of workflow step results
//   - RunStore: workflow runs and their status history
//
// Two backends implement them. storage/badger keeps everything in an
// embedded BadgerDB and implements all three. storage/qdrant implements
// VectorStore against a Qdrant server over gRPC.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	vectors := badger.NewVectorStore(backend)
//	runs := badger.NewRunStore(backend)
//	steps := badger.NewStepStore(backend)
//
// Use in tests with in-memory storage:
//
//	stores, err := badger.NewMemoryStores()
//
// # Serialization
//
// Stored records are encoded with mus-format serializers defined in core.
// The helpers in this package wrap them and map decode failures to
// ErrSerializationFailed.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
