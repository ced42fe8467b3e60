package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragflow/core"
	"github.com/poiesic/ragflow/storage"
)

// StepStore implements storage.StepStore for BadgerDB.
type StepStore struct {
	backend *Backend
}

var _ storage.StepStore = (*StepStore)(nil)

// NewStepStore creates a new StepStore.
func NewStepStore(backend *Backend) *StepStore {
	return &StepStore{
		backend: backend,
	}
}

// SaveStep persists a step result. A step is recorded at most once.
func (r *StepStore) SaveStep(ctx context.Context, result *core.StepResult) error {
	err := r.backend.update(func(tx *badger.Txn) error {
		key := makeStepKey(result.RunID, result.StepID)
		_, err := tx.Get(key)
		if err == nil {
			return fmt.Errorf("%w: run %s step %s", storage.ErrStepExists, result.RunID, result.StepID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if result.CreatedAt.IsZero() {
			result.CreatedAt = time.Now().UTC()
		}
		return tx.Set(key, storage.MarshalStepResult(result))
	})
	if errors.Is(err, storage.ErrStepExists) {
		return err
	}
	return storageErr(err)
}

// LoadStep retrieves the result of a step.
// Returns nil, nil if no result exists.
func (r *StepStore) LoadStep(ctx context.Context, runID, stepID string) (*core.StepResult, error) {
	var result *core.StepResult
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeStepKey(runID, stepID)
		item, err := tx.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			result, unmarshalErr = storage.UnmarshalStepResult(val)
			return unmarshalErr
		})
	}, false)

	return result, storageErr(err)
}
