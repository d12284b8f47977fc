// Package apperr defines the error taxonomy shared by the ingestion and query
// pipeline. Callers classify failures with [errors.Is] against the sentinels:
//
//	ErrValidation  missing identifiers, unsupported file type, empty text
//	ErrDependency  embedding, generation, vector store or blob failures
//	ErrNotFound    a required entity does not exist
//
// Validation and not-found errors are never retried. A dependency failure
// also marked ErrPermanent (rejected credentials, unknown model) is not
// retried either.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input the caller must fix before retrying.
	ErrValidation = errors.New("validation error")
	// ErrDependency marks a failure in an external collaborator.
	ErrDependency = errors.New("dependency error")
	// ErrNotFound marks a lookup of an entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPermanent marks a dependency failure that will not succeed on retry.
	ErrPermanent = errors.New("permanent")
)

// Validation returns an error wrapping ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an error wrapping ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Permanent returns a dependency error that retry loops give up on at once.
func Permanent(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrDependency, ErrPermanent, fmt.Sprintf(format, args...))
}

// Dependency wraps err as a failure of the named collaborator operation.
// Both ErrDependency and err remain reachable through errors.Is/As.
// Errors already classified are returned unchanged apart from the op prefix.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDependency) || errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrDependency, op, err)
}

// IsRetryable reports whether err may succeed on a later attempt.
// Validation, not-found and permanent failures do not qualify.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrPermanent)
}
