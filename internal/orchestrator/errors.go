package orchestrator

import "errors"

// ErrInProgress is returned when a compile is already running. Concurrent
// triggers are rejected, never queued: a stale regenerate request has no value
// once a newer one has started.
var ErrInProgress = errors.New("compile already in progress")

// StoreError wraps a registry snapshot read failure. Nothing is retried; the
// caller or operator decides.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string { return "registry read failed: " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// PublishError wraps a publisher write failure after a valid document was
// produced. The previously published artifact remains authoritative.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string { return "publish failed: " + e.Err.Error() }
func (e *PublishError) Unwrap() error { return e.Err }
