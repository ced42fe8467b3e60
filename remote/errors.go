package remote

import "errors"

var (
	ErrAPIBaseRequired  = errors.New("api base url is required")
	ErrEventURLRequired = errors.New("event url is required")

	// ErrUnexpectedStatus indicates the engine answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrNoEventID indicates the engine accepted an event without returning its id.
	ErrNoEventID = errors.New("no event id returned")
)
