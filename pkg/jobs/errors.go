package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies input/config/payload validation failures.
	ErrValidation = errors.New("jobs validation error")
	// ErrPermanent classifies failures that must not be retried.
	ErrPermanent = errors.New("jobs permanent failure")
	// ErrClaimLost classifies operations on a claim whose lease was
	// reclaimed by the staleness sweep.
	ErrClaimLost = errors.New("jobs claim lost")
	// ErrClosed classifies operations on an already closed queue.
	ErrClosed = errors.New("jobs queue closed")
)

func jobsError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

// Permanent wraps err so the worker treats it as non-retryable.
// A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err carries the permanent classification.
// Every other dispatch error is treated as transient and retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
