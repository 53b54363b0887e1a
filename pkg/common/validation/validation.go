// Package validation provides common validation utilities for the dispatch packages.
package validation

import (
	"time"

	dserrors "github.com/vnykmshr/dispatch/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return dserrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative validates that an integer value is non-negative (>= 0).
func ValidateNonNegative(module, field string, value int) error {
	if value < 0 {
		return dserrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidatePositiveDuration validates that a duration is greater than zero.
func ValidatePositiveDuration(module, field string, value time.Duration) error {
	if value <= 0 {
		return dserrors.NewValidationError(module, field, value, "must be positive").
			WithHint("use a duration such as 30s")
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return dserrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}

// ValidateMinLen validates that a collection holds at least min entries.
// n is the collection length, passed by the caller to stay type-agnostic.
func ValidateMinLen(module, field string, n, min int) error {
	if n < min {
		return dserrors.NewValidationError(module, field, n, "too few entries").
			WithHint("register at least one " + field + " entry")
	}
	return nil
}
