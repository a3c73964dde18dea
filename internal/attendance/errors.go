package attendance

import (
	"errors"
	"fmt"
)

// Expected failures. Callers match them with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrSessionConflict     = errors.New("an attendance session is already active")
	ErrInvalidState        = errors.New("session is already closed")
	ErrNoActiveSession     = errors.New("no active attendance session")
	ErrDuplicateRequest    = errors.New("a code was already sent; use it or wait for it to expire")
	ErrNotRequested        = errors.New("no code was requested")
	ErrExpired             = errors.New("code has expired")
	ErrAttemptsExceeded    = errors.New("maximum verification attempts exceeded")
	ErrMismatch            = errors.New("invalid code")
	ErrDuplicateAttendance = errors.New("attendance already marked for this session")
	ErrDuplicateMember     = errors.New("registration code already exists")
	ErrDeliveryFailed      = errors.New("code delivery failed")
	ErrStorage             = errors.New("storage failure")

	// ErrStaleMember means the member changed since it was read.
	ErrStaleMember = errors.New("member was modified concurrently")
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return ErrNotFound.Error()
	}
	return fmt.Sprintf("%s %v", e.Resource, ErrNotFound)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// MismatchError is returned for a wrong code and carries the attempts left.
type MismatchError struct {
	Remaining int
}

func (e MismatchError) Error() string {
	return fmt.Sprintf("%v: %d attempts remaining", ErrMismatch, e.Remaining)
}

func (e MismatchError) Unwrap() error { return ErrMismatch }

// StorageError wraps an unclassified persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorage, e.Err)
}

func (e StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// DeliveryError wraps the delivery collaborator's failure. The code it was
// carrying stays persisted.
type DeliveryError struct {
	Err error
}

func (e DeliveryError) Error() string {
	return fmt.Sprintf("%v: %v", ErrDeliveryFailed, e.Err)
}

func (e DeliveryError) Unwrap() []error { return []error{ErrDeliveryFailed, e.Err} }

// RemainingAttempts extracts the attempts left from a mismatch error.
func RemainingAttempts(err error) (int, bool) {
	var me MismatchError
	if errors.As(err, &me) {
		return me.Remaining, true
	}
	return 0, false
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se StorageError
	if errors.As(err, &se) {
		return err
	}
	return StorageError{Op: op, Err: err}
}
