// Package errors provides structured error types for the vmbridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Three kinds are surfaced by the dispatcher and are the ones
// callers usually branch on:
//
//	KindMarshalling       a host value could not be represented as text
//	KindBoundary          the guest called its throw import; Value holds the message
//	KindResourceExhausted the guest allocator could not satisfy a request
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindMarshalling).
//		GoType("struct{}").
//		Detail("cannot pass value as text").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Boundary("div by zero")
//	err := errors.OutOfBounds(ptr, n, len(buf))
//
// All errors implement the standard error interface and support errors.Is/As.
// IsKind matches on Kind alone:
//
//	if errors.IsKind(err, errors.KindBoundary) { ... }
package errors
