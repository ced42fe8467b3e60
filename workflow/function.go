package workflow

import (
	"context"
	"fmt"

	"github.com/poiesic/ragflow/core"
)

// Handler runs one function for one event. Its return value becomes the
// run output and must be JSON-encodable.
type Handler func(ctx context.Context, steps *Steps, event core.Event) (any, error)

// Function binds a handler to the event name that triggers it.
type Function struct {
	ID      string
	Trigger string
	Handler Handler
}

func (f Function) validate() error {
	if f.ID == "" || f.Trigger == "" || f.Handler == nil {
		return fmt.Errorf("%w: id, trigger, and handler are required", ErrInvalidFunction)
	}
	return nil
}
