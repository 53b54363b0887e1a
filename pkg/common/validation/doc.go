// Package validation provides common validation utilities for configuration
// parameters across the dispatch packages.
//
// Every validator returns a *errors.ValidationError that wraps
// errors.ErrInvalidConfiguration, so callers can test for configuration
// problems with errors.Is regardless of which field was rejected.
package validation
