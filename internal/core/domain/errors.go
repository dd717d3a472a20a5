package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrExtractionEmpty = errors.New("extraction produced no text")
	ErrCountMismatch   = errors.New("count mismatch")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Retryable reports whether the job queue should redeliver after err.
// Deterministic failures (empty extraction, contract breaches, bad input)
// repeat identically on retry and are excluded.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case IsKind(err, ErrExtractionEmpty),
		IsKind(err, ErrCountMismatch),
		IsKind(err, ErrInvalidInput),
		IsKind(err, ErrNotFound),
		IsKind(err, ErrAccessDenied):
		return false
	}
	return true
}
