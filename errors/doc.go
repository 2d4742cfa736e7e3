// Package errors provides structured error types for bufmap.
//
// Errors are categorized by Phase (which operation failed) and Kind (error category).
// The Error type carries an optional config path, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConfig, errors.KindInvalidInput).
//		Path("table", "buckets").
//		Value(3).
//		Detail("buckets (%d) must not be less than capacity (%d)", 3, 4).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TableFull(50)
//	err := errors.DoubleFree(errors.PhaseRelease, "handle", 7)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on Phase and Kind, so a bare &Error{Phase: p, Kind: k} works as a sentinel.
package errors
