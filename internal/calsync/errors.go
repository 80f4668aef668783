package calsync

import (
	"errors"
	"fmt"
)

// ErrInvalidReminder is returned when a request fails local validation.
// No remote call is made in that case.
var ErrInvalidReminder = errors.New("invalid reminder")

// Kind classifies a SyncError.
type Kind string

const (
	KindInvalidReminder Kind = "invalid_reminder"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindAuth            Kind = "auth"
	KindQuota           Kind = "quota"
	KindNetwork         Kind = "network"
	KindRemote          Kind = "remote"
)

// Operation names used in SyncError.Op.
const (
	OpCreate = "create"
	OpList   = "list"
	OpDelete = "delete"
)

// SyncError is a normalized calendar store failure.
type SyncError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("calendar %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("calendar %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a caller may safely repeat the operation.
// Creates are never retryable: the store does not deduplicate by content.
func (e *SyncError) Retryable() bool {
	if e.Op == OpCreate {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindRemote, KindQuota:
		return true
	}
	return false
}

// NewError builds a SyncError. Backends use it to report classified failures.
func NewError(op string, kind Kind, err error) *SyncError {
	return &SyncError{Op: op, Kind: kind, Err: err}
}

// IsKind reports whether err is a SyncError of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Kind == kind
}

func invalid(op, reason string) *SyncError {
	return NewError(op, KindInvalidReminder, fmt.Errorf("%w: %s", ErrInvalidReminder, reason))
}

// normalize ensures every store failure leaves the client as a SyncError.
func normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *SyncError
	if errors.As(err, &se) {
		if se.Op == "" {
			se.Op = op
		}
		return se
	}
	return NewError(op, KindRemote, err)
}
