// Package errors provides error handling for prism.
//
// This package re-exports github.com/cockroachdb/errors so every package
// gets stack traces, wrapping, hints and details from one import:
//
//	if err := sink.Upsert(ctx, doc); err != nil {
//	    return errors.Wrapf(err, "failed to upsert %s", table)
//	}
//
// Sentinels below classify failures for the job queue. Mark an error with
// one of them (errors.Mark) to keep the original message while making
// errors.Is match the class.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel errors shared across prism.
var (
	// ErrNotFound indicates the source record does not exist (hard-deleted)
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates a malformed mutation, payload or config
	ErrInvalidRequest = New("invalid request")

	// ErrStoreNotConfigured indicates a target store is absent from this deployment
	ErrStoreNotConfigured = New("store not configured")

	// ErrStoreUnavailable indicates a target store could not be reached or rejected a write
	ErrStoreUnavailable = New("store unavailable")

	// ErrUnsupportedDataType indicates an attribute definition the codec cannot encode
	ErrUnsupportedDataType = New("unsupported data type")

	// ErrMarkerHeld indicates another reconcile run holds the marker
	ErrMarkerHeld = New("reconcile marker held")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest.
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsStoreUnavailable checks if an error is marked as a target-store failure.
func IsStoreUnavailable(err error) bool {
	return err != nil && Is(err, ErrStoreUnavailable)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}

// Unavailable marks err as a target-store failure so the queue retries it.
func Unavailable(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrStoreUnavailable)
}

// Unsupported builds a codec error for an attribute whose data type cannot be encoded.
func Unsupported(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrUnsupportedDataType)
}
