// Package engine aggregates FD rate records and ranks recommendations.
//
// Every function here is pure: callers load a snapshot of the catalog and
// pass it in. Nothing in this package performs I/O or keeps state.
package engine

import "errors"

var (
	// ErrNoDataAvailable means no valid record survived validation.
	ErrNoDataAvailable = errors.New("no rate data available")

	ErrInvalidRiskPreference = errors.New("invalid risk preference")
	ErrInvalidAmount         = errors.New("invalid investment amount")
	ErrUnknownSortKey        = errors.New("unknown sort key")
	ErrInvalidSortDirection  = errors.New("invalid sort direction")
)
