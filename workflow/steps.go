package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
)

// Steps gives a handler access to memoized steps of its run.
type Steps struct {
	runID  string
	store  storage.StepStore
	retry  RetryPolicy
	logger *slog.Logger

	executed atomic.Int32
	replayed atomic.Int32
}

// NewSteps creates a step context for runID. Runner creates these for
// handlers; tests may use it to drive a handler directly.
func NewSteps(runID string, store storage.StepStore, retry RetryPolicy, logger *slog.Logger) *Steps {
	if logger == nil {
		logger = slog.Default()
	}
	return &Steps{
		runID:  runID,
		store:  store,
		retry:  retry,
		logger: logger.With("run_id", runID),
	}
}

// RunID returns the id of the run the steps belong to.
func (s *Steps) RunID() string { return s.runID }

// Executed returns how many steps ran their function in this attempt.
func (s *Steps) Executed() int { return int(s.executed.Load()) }

// Replayed returns how many steps were answered from stored results.
func (s *Steps) Replayed() int { return int(s.replayed.Load()) }

// Run executes fn as the step stepID of the run and returns its value.
// A step that already completed in an earlier attempt of the run is not
// executed again; its stored value is decoded and returned. A new result
// is stored at most once. Failures are retried per the runner's policy.
func Run[T any](ctx context.Context, steps *Steps, stepID string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if stepID == "" {
		return zero, NonRetryable(fmt.Errorf("%w: empty step id", core.ErrInvalidArgument))
	}

	if value, ok, err := loadStep[T](ctx, steps, stepID); err != nil || ok {
		return value, err
	}

	var value T
	err := RetryWithBackoff(ctx, func() error {
		var err error
		value, err = fn(ctx)
		return err
	}, steps.retry.MaxAttempts, steps.retry.BaseDelay)
	if err != nil {
		steps.logger.Warn("step failed", "step", stepID, "err", err)
		return zero, fmt.Errorf("step %s: %w", stepID, err)
	}
	steps.executed.Add(1)

	raw, err := json.Marshal(value)
	if err != nil {
		return zero, NonRetryable(fmt.Errorf("step %s: encoding result: %w", stepID, err))
	}

	err = steps.store.SaveStep(ctx, &core.StepResult{
		RunID:  steps.runID,
		StepID: stepID,
		Value:  raw,
	})
	if errors.Is(err, storage.ErrStepExists) {
		// Another attempt of the same run finished first; its value wins.
		if stored, ok, loadErr := loadStep[T](ctx, steps, stepID); loadErr != nil || ok {
			return stored, loadErr
		}
	}
	if err != nil {
		return zero, fmt.Errorf("step %s: saving result: %w", stepID, err)
	}

	steps.logger.Debug("step completed", "step", stepID)
	return value, nil
}

func loadStep[T any](ctx context.Context, steps *Steps, stepID string) (T, bool, error) {
	var value T
	stored, err := steps.store.LoadStep(ctx, steps.runID, stepID)
	if err != nil {
		return value, false, fmt.Errorf("step %s: loading result: %w", stepID, err)
	}
	if stored == nil {
		return value, false, nil
	}
	if err := json.Unmarshal(stored.Value, &value); err != nil {
		return value, false, NonRetryable(fmt.Errorf("step %s: decoding stored result: %w", stepID, err))
	}
	steps.replayed.Add(1)
	steps.logger.Debug("step replayed", "step", stepID)
	return value, true, nil
}
