package topic

import "errors"

var (
	// ErrNotFound means the requested topic has no remote record.
	ErrNotFound = errors.New("topic not found")

	// ErrTransient marks remote failures (network, timeout, open circuit)
	// that may succeed on retry.
	ErrTransient = errors.New("transient fetch failure")
)

// transientError joins ErrTransient with the underlying cause so both
// match under errors.Is.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return "transient: " + e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

// Transient wraps err as a transient failure. Nil stays nil.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &transientError{err: err}
}
