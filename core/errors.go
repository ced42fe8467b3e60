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
	"errors"
	"fmt"
)

// Domain errors
var (
	// ErrValidation indicates an inbound event failed shape or type checks.
	ErrValidation = errors.New("validation failed")

	// ErrConfigMismatch indicates an existing collection has a different configuration.
	ErrConfigMismatch = errors.New("collection configuration mismatch")

	// ErrInvalidArgument indicates a caller passed inconsistent arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch indicates a vector length differs from the collection dimension.
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrInvalidArgument)

	// ErrEmbedding indicates the embedding service failed.
	ErrEmbedding = errors.New("embedding failed")

	// ErrGeneration indicates the generation model failed.
	ErrGeneration = errors.New("generation failed")

	// ErrStorage indicates the vector store or run store failed.
	ErrStorage = errors.New("storage failed")

	// ErrUnknownEvent indicates an event name with no registered shape.
	ErrUnknownEvent = fmt.Errorf("%w: unknown event", ErrValidation)

	// ErrMissingField indicates a required event field was absent.
	ErrMissingField = fmt.Errorf("%w: missing required field", ErrValidation)
)
