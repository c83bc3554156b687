package scheduler

import "errors"

var (
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler already running")
	// ErrNotRunning is returned by Stop when Start was never called.
	ErrNotRunning = errors.New("scheduler not running")
	// ErrTickAborted means a stop request arrived between stages.
	ErrTickAborted = errors.New("tick aborted by shutdown")
)
