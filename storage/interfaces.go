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

package storage

import (
	"context"

	"github.com/poiesic/ragflow/core"
)

// VectorStore is a collection-scoped vector index.
// Implementations must be thread-safe and support concurrent access.
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist.
	// It is a no-op when the collection exists with the same dimension.
	// Returns core.ErrConfigMismatch if the existing dimension differs.
	EnsureCollection(ctx context.Context, cfg core.CollectionConfig) error

	// Upsert writes points, fully replacing any existing point with the same id.
	// ids, vectors and payloads must have equal lengths (core.ErrInvalidArgument).
	// Vectors must match the collection dimension (core.ErrDimensionMismatch).
	Upsert(ctx context.Context, collection string, ids []core.PointID, vectors [][]float32, payloads []core.Payload) error

	// Search returns at most topK points ordered by descending similarity.
	// A non-empty filter other than core.MatchAll restricts results to
	// points whose payload source equals filter.
	// topK <= 0 returns no points.
	Search(ctx context.Context, collection string, vector []float32, topK int, filter string) ([]core.ScoredPoint, error)

	// Close releases resources held by the store.
	Close() error
}

// StepStore memoizes step results per (run, step).
// Entries are written at most once and never modified.
type StepStore interface {
	// LoadStep returns the memoized result of a step.
	// Returns nil, nil if the step has not completed.
	LoadStep(ctx context.Context, runID, stepID string) (*core.StepResult, error)

	// SaveStep records a step result.
	// Returns ErrStepExists if a result is already recorded for the step.
	SaveStep(ctx context.Context, result *core.StepResult) error
}

// RunStore persists workflow runs.
type RunStore interface {
	// CreateRun stores a new run and indexes it under its event id.
	// Returns ErrDuplicateKey if a run with the same id exists.
	CreateRun(ctx context.Context, run *core.Run) error

	// GetRun retrieves a run by id.
	// Returns ErrNotFound if the run doesn't exist.
	GetRun(ctx context.Context, runID string) (*core.Run, error)

	// RunsForEvent returns the runs triggered by an event, oldest first.
	// Returns an empty slice if the event has no runs.
	RunsForEvent(ctx context.Context, eventID string) ([]*core.Run, error)

	// UpdateRun applies fn to the stored run and persists the result atomically.
	// Returns ErrTerminalRun if the stored run is already terminal.
	UpdateRun(ctx context.Context, runID string, fn func(run *core.Run) error) (*core.Run, error)

	// PendingRuns returns all runs that have not reached a terminal status.
	PendingRuns(ctx context.Context) ([]*core.Run, error)
}
