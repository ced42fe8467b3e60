package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
	"github.com/poiesic/ragflow/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ingestData = []byte(`{"source_id":"report.pdf","raw_text":"hello"}`)

func newTestRunner(t *testing.T, fns ...Function) (*Runner, *badger.Stores) {
	t.Helper()
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)

	r, err := NewRunner(stores.Runs, stores.Steps,
		WithPoolSize(4),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}),
		WithFunctions(fns...),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		stores.Close()
	})
	return r, stores
}

func echoFunction() Function {
	return Function{
		ID:      "echo",
		Trigger: core.EventIngestDocument,
		Handler: func(ctx context.Context, steps *Steps, event core.Event) (any, error) {
			ev := event.(core.IngestDocumentEvent)
			return Run(ctx, steps, "echo", func(ctx context.Context) (map[string]string, error) {
				return map[string]string{"source": ev.SourceID}, nil
			})
		},
	}
}

func onlyRun(t *testing.T, r *Runner, eventID string) *core.Run {
	t.Helper()
	runs, err := r.FetchRuns(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func TestNewRunner_Validation(t *testing.T) {
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer stores.Close()

	_, err = NewRunner(nil, stores.Steps)
	assert.ErrorIs(t, err, ErrRunStoreRequired)
	_, err = NewRunner(stores.Runs, nil)
	assert.ErrorIs(t, err, ErrStepStoreRequired)
	_, err = NewRunner(stores.Runs, stores.Steps, WithRetryPolicy(RetryPolicy{}))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	_, err = NewRunner(stores.Runs, stores.Steps, WithFunctions(Function{ID: "x"}))
	assert.ErrorIs(t, err, ErrInvalidFunction)
	_, err = NewRunner(stores.Runs, stores.Steps, WithFunctions(echoFunction(), echoFunction()))
	assert.ErrorIs(t, err, ErrDuplicateFunction)
}

func TestSend_Completes(t *testing.T) {
	r, _ := newTestRunner(t, echoFunction())
	ctx := context.Background()

	eventID, err := r.Send(ctx, core.EventIngestDocument, ingestData)
	require.NoError(t, err)
	require.NotEmpty(t, eventID)
	r.Wait()

	run := onlyRun(t, r, eventID)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.Equal(t, "echo", run.FunctionID)
	assert.JSONEq(t, `{"source":"report.pdf"}`, string(run.Output))
	assert.Empty(t, run.Error)

	byID, err := r.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Status, byID.Status)
}

func TestRunLogsCarryRunIDOnce(t *testing.T) {
	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer stores.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r, err := NewRunner(stores.Runs, stores.Steps, WithFunctions(echoFunction()), WithLogger(logger))
	require.NoError(t, err)

	_, err = r.Send(context.Background(), core.EventIngestDocument, ingestData)
	require.NoError(t, err)
	r.Wait()
	require.NoError(t, r.Close())

	logs := buf.String()
	assert.Contains(t, logs, "step completed")
	for _, line := range strings.Split(strings.TrimSpace(logs), "\n") {
		assert.LessOrEqual(t, strings.Count(line, "run_id="), 1, line)
	}
}

func TestSend_InvalidEventCreatesNoRun(t *testing.T) {
	r, stores := newTestRunner(t, echoFunction())
	ctx := context.Background()

	_, err := r.Send(ctx, core.EventIngestDocument, []byte(`{"source_id":"x"}`))
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = r.Send(ctx, "delete_everything", []byte(`{}`))
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = r.SendEvent(ctx, core.QueryDocumentEvent{Question: "   "})
	assert.ErrorIs(t, err, core.ErrValidation)

	pending, err := stores.Runs.PendingRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSend_NoFunctions(t *testing.T) {
	r, _ := newTestRunner(t)
	eventID, err := r.SendEvent(context.Background(), core.IngestDocumentEvent{SourceID: "a", RawText: "b"})
	require.NoError(t, err)

	runs, err := r.FetchRuns(context.Background(), eventID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSend_FanOut(t *testing.T) {
	second := echoFunction()
	second.ID = "echo-2"
	r, _ := newTestRunner(t, echoFunction(), second)

	eventID, err := r.Send(context.Background(), core.EventIngestDocument, ingestData)
	require.NoError(t, err)
	r.Wait()

	runs, err := r.FetchRuns(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, core.RunStatusCompleted, run.Status)
	}
}

func TestRun_FailureRecorded(t *testing.T) {
	var attempts atomic.Int32
	fn := Function{
		ID:      "flaky",
		Trigger: core.EventIngestDocument,
		Handler: func(ctx context.Context, steps *Steps, event core.Event) (any, error) {
			return Run(ctx, steps, "always-fails", func(ctx context.Context) (int, error) {
				attempts.Add(1)
				return 0, errors.New("upstream unavailable")
			})
		},
	}
	r, _ := newTestRunner(t, fn)

	eventID, err := r.Send(context.Background(), core.EventIngestDocument, ingestData)
	require.NoError(t, err)
	r.Wait()

	run := onlyRun(t, r, eventID)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "upstream unavailable")
	assert.Equal(t, int32(3), attempts.Load())

	var out map[string]string
	require.NoError(t, json.Unmarshal(run.Output, &out))
	assert.Contains(t, out["error"], "upstream unavailable")
}

func TestRun_PanicFailsRun(t *testing.T) {
	fn := Function{
		ID:      "panics",
		Trigger: core.EventIngestDocument,
		Handler: func(ctx context.Context, steps *Steps, event core.Event) (any, error) {
			panic("boom")
		},
	}
	r, _ := newTestRunner(t, fn)

	eventID, err := r.Send(context.Background(), core.EventIngestDocument, ingestData)
	require.NoError(t, err)
	r.Wait()

	run := onlyRun(t, r, eventID)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "boom")
}

func TestCancel(t *testing.T) {
	started := make(chan struct{})
	fn := Function{
		ID:      "blocks",
		Trigger: core.EventIngestDocument,
		Handler: func(ctx context.Context, steps *Steps, event core.Event) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r, _ := newTestRunner(t, fn)
	ctx := context.Background()

	eventID, err := r.Send(ctx, core.EventIngestDocument, ingestData)
	require.NoError(t, err)
	<-started

	run := onlyRun(t, r, eventID)
	require.NoError(t, r.Cancel(ctx, run.ID))
	r.Wait()

	run = onlyRun(t, r, eventID)
	assert.Equal(t, core.RunStatusCancelled, run.Status)

	err = r.Cancel(ctx, run.ID)
	assert.ErrorIs(t, err, storage.ErrTerminalRun)
}

func TestResumePending_SkipsCompletedSteps(t *testing.T) {
	var chunkCalls, storeCalls atomic.Int32
	fn := Function{
		ID:      "ingest",
		Trigger: core.EventIngestDocument,
		Handler: func(ctx context.Context, steps *Steps, event core.Event) (any, error) {
			chunks, err := Run(ctx, steps, "load-and-chunk", func(ctx context.Context) ([]string, error) {
				chunkCalls.Add(1)
				return []string{"fresh"}, nil
			})
			if err != nil {
				return nil, err
			}
			return Run(ctx, steps, "embed-and-upsert", func(ctx context.Context) (core.IngestResult, error) {
				storeCalls.Add(1)
				return core.IngestResult{Ingested: len(chunks)}, nil
			})
		},
	}
	r, stores := newTestRunner(t, fn)
	ctx := context.Background()

	// A run interrupted after its first step.
	require.NoError(t, stores.Runs.CreateRun(ctx, &core.Run{
		ID:         "run-1",
		FunctionID: "ingest",
		EventID:    "event-1",
		EventName:  core.EventIngestDocument,
		EventData:  ingestData,
		Status:     core.RunStatusRunning,
	}))
	require.NoError(t, stores.Steps.SaveStep(ctx, &core.StepResult{
		RunID:  "run-1",
		StepID: "load-and-chunk",
		Value:  json.RawMessage(`["stored-1","stored-2"]`),
	}))

	resumed, err := r.ResumePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	r.Wait()

	run, err := r.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.JSONEq(t, `{"ingested":2}`, string(run.Output))
	assert.Zero(t, chunkCalls.Load())
	assert.Equal(t, int32(1), storeCalls.Load())

	err = r.Resume(ctx, "run-1")
	assert.ErrorIs(t, err, storage.ErrTerminalRun)
}

func TestClose(t *testing.T) {
	r, _ := newTestRunner(t, echoFunction())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.Send(context.Background(), core.EventIngestDocument, ingestData)
	assert.ErrorIs(t, err, ErrRunnerClosed)
}
