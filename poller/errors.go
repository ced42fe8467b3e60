package poller

import (
	"errors"
	"fmt"

	"github.com/poiesic/ragflow/core"
)

var (
	// ErrRunFailed is matched by *RunFailedError.
	ErrRunFailed = errors.New("run failed")

	// ErrPollTimeout is matched by *PollTimeoutError.
	ErrPollTimeout = errors.New("timed out waiting for run output")

	ErrSourceRequired = errors.New("status source is required")
)

// RunFailedError reports that a run reached a failure status.
type RunFailedError struct {
	RunID  string
	Status core.RunStatus
	Output []byte
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("function run %s", e.Status)
}

func (e *RunFailedError) Is(target error) bool {
	return target == ErrRunFailed
}

// PollTimeoutError reports that no terminal status was observed in time.
// LastStatus is empty when no run was ever seen.
type PollTimeoutError struct {
	LastStatus core.RunStatus
}

func (e *PollTimeoutError) Error() string {
	last := string(e.LastStatus)
	if last == "" {
		last = "none"
	}
	return fmt.Sprintf("%s (last status: %s)", ErrPollTimeout, last)
}

func (e *PollTimeoutError) Is(target error) bool {
	return target == ErrPollTimeout
}
