package storage

import "errors"

// ErrClosed is returned by drivers used after Close.
var ErrClosed = errors.New("storage driver closed")

// CommitError wraps a failure to persist a batch. Nothing in the batch was applied.
type CommitError struct {
	Err error
}

func (e CommitError) Error() string {
	return "commit failed: " + e.Err.Error()
}

func (e CommitError) Unwrap() error {
	return e.Err
}
