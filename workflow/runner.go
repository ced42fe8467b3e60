package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
)

// Runner accepts events, creates one run per triggered function, and
// executes runs on a worker pool. Run state and step results are durable,
// so runs interrupted by a restart can be resumed.
type Runner struct {
	runs   storage.RunStore
	steps  storage.StepStore
	pool   *ants.Pool
	retry  RetryPolicy
	logger *slog.Logger

	mu        sync.Mutex
	functions map[string]Function
	triggers  map[string][]string
	active    map[string]context.CancelFunc // scheduled runs; nil until executing
	closed    bool
	wg        sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner) error

// WithPoolSize sets how many runs execute concurrently.
// Default is runtime.NumCPU().
func WithPoolSize(size int) Option {
	return func(r *Runner) error {
		if size < 1 {
			size = 1
		}
		if r.pool != nil {
			r.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithRetryPolicy sets the per-step retry policy.
// Default is 3 attempts starting at 500ms.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(r *Runner) error {
		if policy.MaxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		if policy.BaseDelay < 0 {
			return fmt.Errorf("%w: negative base delay", core.ErrInvalidArgument)
		}
		r.retry = policy
		return nil
	}
}

// WithFunctions registers functions at construction.
func WithFunctions(fns ...Function) Option {
	return func(r *Runner) error {
		for _, fn := range fns {
			if err := r.Register(fn); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRunner creates a runner over the given stores.
func NewRunner(runs storage.RunStore, steps storage.StepStore, opts ...Option) (*Runner, error) {
	if runs == nil {
		return nil, ErrRunStoreRequired
	}
	if steps == nil {
		return nil, ErrStepStoreRequired
	}

	pool, err := ants.NewPool(runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	r := &Runner{
		runs:      runs,
		steps:     steps,
		pool:      pool,
		retry:     DefaultRetryPolicy(),
		logger:    slog.Default(),
		functions: make(map[string]Function),
		triggers:  make(map[string][]string),
		active:    make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		if optErr := opt(r); optErr != nil {
			r.pool.Release()
			return nil, optErr
		}
	}
	r.logger = r.logger.With("component", "workflow")

	return r, nil
}

// Register adds a function. Functions must be registered before events
// that trigger them are sent.
func (r *Runner) Register(fn Function) error {
	if err := fn.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.functions[fn.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFunction, fn.ID)
	}
	r.functions[fn.ID] = fn
	r.triggers[fn.Trigger] = append(r.triggers[fn.Trigger], fn.ID)
	return nil
}

// Send accepts an event and returns its id. The event is validated first;
// an invalid event creates no run. One queued run is created for every
// function triggered by name, and each is scheduled for execution.
func (r *Runner) Send(ctx context.Context, name string, data []byte) (string, error) {
	event, err := core.DecodeEvent(name, data)
	if err != nil {
		return "", err
	}
	normalized, err := core.EncodeEvent(event)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRunnerClosed
	}
	fnIDs := append([]string(nil), r.triggers[name]...)
	r.mu.Unlock()

	eventID := uuid.NewString()
	if len(fnIDs) == 0 {
		r.logger.Warn("no functions registered for event", "event", name, "event_id", eventID)
		return eventID, nil
	}

	for _, fnID := range fnIDs {
		run := &core.Run{
			ID:         uuid.NewString(),
			FunctionID: fnID,
			EventID:    eventID,
			EventName:  name,
			EventData:  normalized,
			Status:     core.RunStatusQueued,
		}
		if err := r.runs.CreateRun(ctx, run); err != nil {
			return "", fmt.Errorf("creating run for %s: %w", fnID, err)
		}
		r.logger.Info("run queued", "event", name, "event_id", eventID, "run_id", run.ID, "function", fnID)
		if err := r.submit(run.ID); err != nil {
			return "", err
		}
	}
	return eventID, nil
}

// SendEvent encodes and sends a typed event.
func (r *Runner) SendEvent(ctx context.Context, event core.Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("%w: nil event", core.ErrValidation)
	}
	data, err := core.EncodeEvent(event)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	return r.Send(ctx, event.EventName(), data)
}

// FetchRuns returns the runs created for an event, oldest first.
func (r *Runner) FetchRuns(ctx context.Context, eventID string) ([]*core.Run, error) {
	return r.runs.RunsForEvent(ctx, eventID)
}

// GetRun returns a run by id.
func (r *Runner) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	return r.runs.GetRun(ctx, runID)
}

// Cancel marks a run Cancelled and interrupts it if it is executing.
// Cancelling a finished run returns storage.ErrTerminalRun.
func (r *Runner) Cancel(ctx context.Context, runID string) error {
	_, err := r.runs.UpdateRun(ctx, runID, func(run *core.Run) error {
		run.Status = core.RunStatusCancelled
		run.Error = "cancelled"
		run.Output = errorOutput("cancelled")
		return nil
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	cancel := r.active[runID]
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.logger.Info("run cancelled", "run_id", runID)
	return nil
}

// Resume schedules a run that has not finished, for example after a
// restart. Steps completed earlier are not executed again.
func (r *Runner) Resume(ctx context.Context, runID string) error {
	run, err := r.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return fmt.Errorf("%w: run %s is %s", storage.ErrTerminalRun, runID, run.Status)
	}
	return r.submit(runID)
}

// ResumePending schedules every unfinished run and returns how many were
// scheduled.
func (r *Runner) ResumePending(ctx context.Context) (int, error) {
	pending, err := r.runs.PendingRuns(ctx)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, run := range pending {
		if err := r.Resume(ctx, run.ID); err != nil {
			if errors.Is(err, storage.ErrTerminalRun) {
				continue
			}
			return resumed, err
		}
		resumed++
	}
	if resumed > 0 {
		r.logger.Info("resumed pending runs", "count", resumed)
	}
	return resumed, nil
}

// Wait blocks until every scheduled run has finished executing.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close stops accepting events, waits for in-flight runs, and releases
// the worker pool.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	r.pool.Release()
	return nil
}

// submit schedules a run unless it is already scheduled or executing.
func (r *Runner) submit(runID string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	if _, scheduled := r.active[runID]; scheduled {
		r.mu.Unlock()
		return nil
	}
	r.active[runID] = nil
	r.wg.Add(1)
	r.mu.Unlock()

	err := r.pool.Submit(func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.active, runID)
			r.mu.Unlock()
		}()
		r.execute(runID)
	})
	if err != nil {
		r.mu.Lock()
		delete(r.active, runID)
		r.mu.Unlock()
		r.wg.Done()
		return fmt.Errorf("scheduling run %s: %w", runID, err)
	}
	return nil
}

func (r *Runner) execute(runID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := r.logger.With("run_id", runID)

	r.mu.Lock()
	r.active[runID] = cancel
	r.mu.Unlock()

	run, err := r.runs.UpdateRun(ctx, runID, func(run *core.Run) error {
		run.Status = core.RunStatusRunning
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrTerminalRun) {
			logger.Debug("run already finished", "err", err)
			return
		}
		logger.Error("error starting run", "err", err)
		return
	}

	output, runErr := r.invoke(ctx, run, logger)

	_, err = r.runs.UpdateRun(context.Background(), runID, func(run *core.Run) error {
		if runErr != nil {
			run.Status = core.RunStatusFailed
			run.Error = runErr.Error()
			run.Output = errorOutput(runErr.Error())
			return nil
		}
		run.Status = core.RunStatusCompleted
		run.Output = output
		return nil
	})
	switch {
	case errors.Is(err, storage.ErrTerminalRun):
		logger.Info("run finished after cancellation", "err", runErr)
	case err != nil:
		logger.Error("error recording run result", "err", err)
	case runErr != nil:
		logger.Warn("run failed", "function", run.FunctionID, "err", runErr)
	default:
		logger.Info("run completed", "function", run.FunctionID)
	}
}

// invoke runs the handler and encodes its output. Panics become errors.
func (r *Runner) invoke(ctx context.Context, run *core.Run, logger *slog.Logger) (output json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("handler panicked", "panic", p)
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()

	r.mu.Lock()
	fn, ok := r.functions[run.FunctionID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, run.FunctionID)
	}

	event, err := core.DecodeEvent(run.EventName, run.EventData)
	if err != nil {
		return nil, err
	}

	steps := NewSteps(run.ID, r.steps, r.retry, r.logger)
	result, err := fn.Handler(ctx, steps, event)
	if err != nil {
		return nil, err
	}

	output, err = json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}
	return output, nil
}

func errorOutput(msg string) json.RawMessage {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return out
}
