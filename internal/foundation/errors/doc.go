// Package errors provides the classified error primitives used across wg-federation.
//
// A ClassifiedError carries a category (state, lock, crypto, ...), a severity,
// a retry hint and structured context. Errors are built with a fluent builder:
//
//	err := errors.LockError("cannot acquire exclusive lock").
//		WithContext("path", statePath).
//		WithCause(ioErr).
//		Build()
//
// The CLI and HTTP adapters turn classified errors into exit codes and status
// codes respectively. Unclassified errors are passed through untouched.
package errors
