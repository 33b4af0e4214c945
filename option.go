package serdearrow

import (
	"io"
)

// Option configures a Converter, matching bodkin's option.go pattern.
type (
	Option func(config)
	config *Converter
)

// WithAdapter sets the vendor adapter used by Convert. Without one,
// tracing and compiling still run, but Convert fails with ErrNoAdapter
// before interpreting any rows.
func WithAdapter(a Adapter) Option {
	return func(cfg config) {
		cfg.adapter = a
	}
}

// WithWrapStruct allows tracing/compiling a non-Struct root field by
// wrapping it in a synthetic single-field struct, per
// bytecode.CompilationOptions.WrapWithStruct.
func WithWrapStruct() Option {
	return func(cfg config) {
		cfg.compileOpts.WrapWithStruct = true
	}
}

// WithDebugProgram writes a human-readable bytecode listing to w every time
// Compile runs, the Go-native stand-in for the Rust source's
// CONFIGURATION.debug_print_program global, reshaped into an explicit
// per-Converter option.
func WithDebugProgram(w io.Writer) Option {
	return func(cfg config) {
		cfg.debugWriter = w
	}
}

// WithMaxCount caps the number of rows Trace will accept before returning
// ErrMaxCountReached, mirroring bodkin's WithMaxCount.
func WithMaxCount(n int) Option {
	return func(cfg config) {
		cfg.maxCount = n
	}
}
