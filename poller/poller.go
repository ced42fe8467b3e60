package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/ragflow/core"
)

const (
	DefaultTimeout      = 120 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// Status aliases an external engine may report for a successful run.
const (
	StatusSucceeded core.RunStatus = "Succeeded"
	StatusSuccess   core.RunStatus = "Success"
	StatusFinished  core.RunStatus = "Finished"
)

// StatusSource lists the runs triggered by an event.
// Both the local workflow runner and the remote client implement it.
type StatusSource interface {
	FetchRuns(ctx context.Context, eventID string) ([]*core.Run, error)
}

// Poller waits for the output of the run triggered by an event.
type Poller struct {
	source   StatusSource
	timeout  time.Duration
	interval time.Duration
	success  []core.RunStatus
	failure  []core.RunStatus
	logger   *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller) error

// WithTimeout sets how long to wait before giving up.
// Default is 120s.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) error {
		if d <= 0 {
			return fmt.Errorf("%w: timeout must be positive", core.ErrInvalidArgument)
		}
		p.timeout = d
		return nil
	}
}

// WithPollInterval sets the pause between status fetches.
// Default is 500ms.
func WithPollInterval(d time.Duration) Option {
	return func(p *Poller) error {
		if d <= 0 {
			return fmt.Errorf("%w: poll interval must be positive", core.ErrInvalidArgument)
		}
		p.interval = d
		return nil
	}
}

// WithSuccessStatuses replaces the statuses treated as success.
func WithSuccessStatuses(statuses ...core.RunStatus) Option {
	return func(p *Poller) error {
		if len(statuses) == 0 {
			return fmt.Errorf("%w: at least one success status required", core.ErrInvalidArgument)
		}
		p.success = statuses
		return nil
	}
}

// WithFailureStatuses replaces the statuses treated as failure.
func WithFailureStatuses(statuses ...core.RunStatus) Option {
	return func(p *Poller) error {
		p.failure = statuses
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPoller creates a poller over source.
func NewPoller(source StatusSource, opts ...Option) (*Poller, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	p := &Poller{
		source:   source,
		timeout:  DefaultTimeout,
		interval: DefaultPollInterval,
		success:  []core.RunStatus{core.RunStatusCompleted, StatusSucceeded, StatusSuccess, StatusFinished},
		failure:  []core.RunStatus{core.RunStatusFailed, core.RunStatusCancelled},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "poller")
	return p, nil
}

// WaitForOutput blocks until the first run of eventID succeeds and returns
// its output, or `{}` when the run recorded none. A failure status returns
// a *RunFailedError immediately. When the timeout elapses first, a
// *PollTimeoutError carrying the last observed status is returned; the run
// itself is left alone. Errors from the status source are returned as-is.
func (p *Poller) WaitForOutput(ctx context.Context, eventID string) (json.RawMessage, error) {
	start := time.Now()
	deadline := start.Add(p.timeout)
	var last core.RunStatus

	timer := time.NewTimer(p.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		runs, err := p.source.FetchRuns(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if len(runs) > 0 {
			run := runs[0]
			if run.Status != "" {
				last = run.Status
			}
			switch {
			case slices.Contains(p.success, run.Status):
				p.logger.Debug("run succeeded", "event_id", eventID, "run_id", run.ID, "elapsed", time.Since(start))
				if len(run.Output) == 0 || string(run.Output) == "null" {
					return json.RawMessage(`{}`), nil
				}
				return run.Output, nil
			case slices.Contains(p.failure, run.Status):
				return nil, &RunFailedError{RunID: run.ID, Status: run.Status, Output: run.Output}
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &PollTimeoutError{LastStatus: last}
		}
		timer.Reset(min(p.interval, remaining))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// WaitFor waits like WaitForOutput and decodes the output into T.
func WaitFor[T any](ctx context.Context, p *Poller, eventID string) (T, error) {
	var result T
	output, err := p.WaitForOutput(ctx, eventID)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(output, &result); err != nil {
		return result, fmt.Errorf("decoding run output: %w", err)
	}
	return result, nil
}
