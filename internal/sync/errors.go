package sync

import (
	"errors"
	"fmt"
)

// ErrRunInProgress means another process holds this profile's run lock.
var ErrRunInProgress = errors.New("a sync run for this profile is already in progress")

// ErrMergeConflict is the merge engine's failure signal. It is routed to the
// policy resolver, never surfaced to the user as an error.
var ErrMergeConflict = errors.New("overlapping changes cannot be merged")

// IOError is a per-path endpoint failure. It fails one action and leaves the
// rest of the run alone.
type IOError struct {
	Endpoint string
	Op       string
	Path     string
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Endpoint, e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// TransportError means an endpoint's transport is dead for the rest of the
// run: every remaining action touching it is failed without being attempted.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("endpoint %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
