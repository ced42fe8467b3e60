package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
)

// RunStore implements storage.RunStore for BadgerDB.
type RunStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.RunStore = (*RunStore)(nil)

// NewRunStore creates a new RunStore.
func NewRunStore(backend *Backend) *RunStore {
	return &RunStore{
		backend: backend,
		logger:  slog.Default().With("component", "badger-runs"),
	}
}

// CreateRun implements storage.RunStore.
// Sets CreatedAt and UpdatedAt if not already set.
func (r *RunStore) CreateRun(ctx context.Context, run *core.Run) error {
	if run.ID == "" || run.EventID == "" {
		return fmt.Errorf("%w: run id and event id are required", core.ErrInvalidArgument)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}

	err := r.backend.update(func(tx *badger.Txn) error {
		key := makeRunKey(run.ID)
		_, err := tx.Get(key)
		if err == nil {
			return fmt.Errorf("%w: run %s", storage.ErrDuplicateKey, run.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(key, storage.MarshalRun(run)); err != nil {
			return err
		}
		return tx.Set(makeRunEventKey(run.EventID, run.CreatedAt, run.ID), []byte(run.ID))
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		return err
	}
	return storageErr(err)
}

// GetRun implements storage.RunStore.
func (r *RunStore) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	var run *core.Run
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		run, err = loadRun(tx, runID)
		return err
	}, false)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return run, storageErr(err)
}

// RunsForEvent implements storage.RunStore.
func (r *RunStore) RunsForEvent(ctx context.Context, eventID string) ([]*core.Run, error) {
	runs := []*core.Run{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRunEventPrefix(eventID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var runID string
			err := iter.Item().Value(func(val []byte) error {
				runID = string(val)
				return nil
			})
			if err != nil {
				return err
			}

			run, err := loadRun(tx, runID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					// Dangling index entry; skip it
					continue
				}
				return err
			}
			runs = append(runs, run)
		}
		return nil
	}, false)
	if err != nil {
		return nil, storageErr(err)
	}
	return runs, nil
}

// UpdateRun implements storage.RunStore.
// The status change made by fn is checked against the run state machine.
func (r *RunStore) UpdateRun(ctx context.Context, runID string, fn func(run *core.Run) error) (*core.Run, error) {
	var updated *core.Run
	var fnErr error
	err := r.backend.update(func(tx *badger.Txn) error {
		run, err := loadRun(tx, runID)
		if err != nil {
			return err
		}
		if run.Status.IsTerminal() {
			return fmt.Errorf("%w: run %s is %s", storage.ErrTerminalRun, runID, run.Status)
		}

		from := run.Status
		if err := fn(run); err != nil {
			fnErr = err
			return err
		}
		if err := core.ValidateTransition(from, run.Status); err != nil {
			return err
		}
		run.ID = runID
		run.UpdatedAt = time.Now().UTC()

		if err := tx.Set(makeRunKey(runID), storage.MarshalRun(run)); err != nil {
			return err
		}
		updated = run
		return nil
	})
	if err != nil {
		if fnErr != nil || errors.Is(err, storage.ErrNotFound) || errors.Is(err, core.ErrInvalidTransition) {
			return nil, err
		}
		return nil, storageErr(err)
	}

	r.logger.Debug("run updated", "run_id", runID, "status", updated.Status)
	return updated, nil
}

// PendingRuns implements storage.RunStore.
func (r *RunStore) PendingRuns(ctx context.Context) ([]*core.Run, error) {
	runs := []*core.Run{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var run *core.Run
			err := iter.Item().Value(func(val []byte) error {
				var err error
				run, err = storage.UnmarshalRun(val)
				return err
			})
			if err != nil {
				return err
			}
			if !run.Status.IsTerminal() {
				runs = append(runs, run)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, storageErr(err)
	}
	return runs, nil
}

func loadRun(tx *badger.Txn, runID string) (*core.Run, error) {
	item, err := tx.Get(makeRunKey(runID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: run %s", storage.ErrNotFound, runID)
		}
		return nil, err
	}
	var run *core.Run
	err = item.Value(func(val []byte) error {
		var err error
		run, err = storage.UnmarshalRun(val)
		return err
	})
	return run, err
}
