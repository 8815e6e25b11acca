// Package errors provides error handling for hit-tracker.
//
// It re-exports github.com/cockroachdb/errors so every package gets stack
// traces, wrapping, hints and details from one import:
//
//	if err := store.AppendVisits(ctx, rows); err != nil {
//	    return errors.Wrap(err, "append visits")
//	}
//
//	return errors.WithHint(err, "check store.path in hits.toml")
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
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	Mark               = crdb.Mark
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
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinel errors. Wrap them to add context; match with Is.
var (
	// ErrInvalidConfig indicates a configuration value failed validation
	ErrInvalidConfig = New("invalid configuration")

	// ErrRehydrate indicates startup could not rebuild in-memory state from the durable store.
	// This is the one fatal class: the process must not start with a partial ledger.
	ErrRehydrate = New("rehydration failed")

	// ErrStoreClosed indicates an operation on a closed durable store
	ErrStoreClosed = New("store is closed")

	// ErrWriteTimeout indicates a durable batch write exceeded its deadline and was rolled back
	ErrWriteTimeout = New("durable write timed out")

	// ErrUnknownDriver indicates store.driver names no known backend
	ErrUnknownDriver = New("unknown store driver")
)

// IsInvalidConfig checks if an error is or wraps ErrInvalidConfig
func IsInvalidConfig(err error) bool {
	return err != nil && Is(err, ErrInvalidConfig)
}

// IsRehydrate checks if an error is or wraps ErrRehydrate
func IsRehydrate(err error) bool {
	return err != nil && Is(err, ErrRehydrate)
}

// IsWriteTimeout checks if an error is or wraps ErrWriteTimeout
func IsWriteTimeout(err error) bool {
	return err != nil && Is(err, ErrWriteTimeout)
}
