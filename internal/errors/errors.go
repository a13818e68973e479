// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. These errors should be used by the vault,
// policy, and audit components and mapped to HTTP status codes by handlers.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested secret does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., create-if-absent on an existing name).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid client credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the client doesn't have permission for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrLocked indicates the client is temporarily banned by the intrusion detector.
	ErrLocked = errors.New("locked")

	// ErrCrypto indicates an encryption, decryption, or signature failure.
	// Deliberately opaque: callers must not learn why a cryptographic operation failed.
	ErrCrypto = errors.New("crypto failure")

	// ErrStorage indicates an I/O failure reading or writing the vault or audit files.
	ErrStorage = errors.New("storage failure")

	// ErrPolicy indicates a malformed policy document.
	ErrPolicy = errors.New("policy failure")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context while preserving the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
