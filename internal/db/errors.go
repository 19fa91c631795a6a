package db

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStorageFailure marks any failure of the backing store, including query timeouts.
	ErrStorageFailure = errors.New("storage failure")
	// ErrEmptyDSN is returned by Open when no DSN is configured.
	ErrEmptyDSN = errors.New("DATABASE_URL is not set")
)

// Wrap annotates err with op and marks it as ErrStorageFailure. Returns nil when err is nil.
// Errors already marked are returned with op prepended only.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: query timeout: %w", op, ErrStorageFailure, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
