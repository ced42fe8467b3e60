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
	"strings"
)

// ErrInvalidTransition indicates a run status change out of a terminal state.
var ErrInvalidTransition = errors.New("invalid run status transition")

// ValidateEvent validates a decoded event according to domain rules.
//
// Validation rules:
//   - ingest: source_id must not be blank
//   - query: question must not be blank
//   - query: top_k must not be negative
//
// raw_text may be empty; it simply yields no chunks.
func ValidateEvent(ev Event) error {
	switch e := ev.(type) {
	case IngestDocumentEvent:
		if strings.TrimSpace(e.SourceID) == "" {
			return fmt.Errorf("%w: source_id cannot be empty", ErrValidation)
		}
	case QueryDocumentEvent:
		if strings.TrimSpace(e.Question) == "" {
			return fmt.Errorf("%w: question cannot be empty", ErrValidation)
		}
		if e.TopK < 0 {
			return fmt.Errorf("%w: top_k must be >= 0, got %d", ErrValidation, e.TopK)
		}
	case nil:
		return fmt.Errorf("%w: event is nil", ErrValidation)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return nil
}

// ValidateCollectionConfig checks that a collection can be created.
func ValidateCollectionConfig(cfg CollectionConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidArgument)
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("%w: collection dimension must be > 0, got %d", ErrInvalidArgument, cfg.Dimension)
	}
	switch cfg.Metric {
	case MetricCosine, MetricDot, MetricEuclid:
	default:
		return fmt.Errorf("%w: unsupported metric %d", ErrInvalidArgument, cfg.Metric)
	}
	return nil
}

// ValidateUpsert checks that ids, vectors and payloads line up and that
// every vector has the given dimension. A dimension of 0 skips the length check.
func ValidateUpsert(ids []PointID, vectors [][]float32, payloads []Payload, dimension int) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("%w: %d ids, %d vectors, %d payloads",
			ErrInvalidArgument, len(ids), len(vectors), len(payloads))
	}
	if dimension <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: vector %d has length %d, collection expects %d",
				ErrDimensionMismatch, i, len(v), dimension)
		}
	}
	return nil
}

// ValidateTransition checks that a run may move from one status to another.
// Terminal states are final, and a queued run must start running before it
// can complete or fail. Cancellation is allowed from any non-terminal state.
func ValidateTransition(from, to RunStatus) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if from == RunStatusQueued && (to == RunStatusCompleted || to == RunStatusFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
