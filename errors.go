package serdearrow

import "errors"

// Errors mirrors bodkin's schema.go error set: a handful of sentinel
// values, wrapped with fmt.Errorf at the call site for context.
var (
	ErrNotInitialised  = errors.New("converter not initialised")
	ErrNoSchema        = errors.New("no schema traced yet")
	ErrMaxCountReached = errors.New("max row count reached")
	ErrNoAdapter       = errors.New("no vendor adapter configured")
)
