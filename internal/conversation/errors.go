package conversation

import (
	"context"
	"errors"
	"fmt"
)

// ServiceError is a failed completion call: network, timeout, remote error or
// an unusable response.
type ServiceError struct {
	UserID string
	Err    error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("completion for user %s: %v", e.UserID, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// StoreWriteError is a turn append that did not fully persist. Written counts
// the turns that did.
type StoreWriteError struct {
	UserID  string
	Written int
	Total   int
	Err     error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("append turns for user %s (%d of %d written): %v", e.UserID, e.Written, e.Total, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// Partial reports the inconsistent case: some but not all turns persisted.
func (e *StoreWriteError) Partial() bool {
	return e.Written > 0 && e.Written < e.Total
}

type StoreReadError struct {
	UserID string
	Err    error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("load turns for user %s: %v", e.UserID, e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }
