package service

import (
	"errors"
	"fmt"

	"github.com/Ibrahimalmari/storefront-core/internal/backend"
)

// RetryableError reports a backend call that failed after the local cart was
// rolled back. The caller may retry the same operation.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// retryable wraps network failures. Other backend errors (e.g. not found)
// are returned as is.
func retryable(op string, err error) error {
	if errors.Is(err, backend.ErrNetworkFailure) {
		return &RetryableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryable reports whether err, or anything it wraps, is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
