package validation

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/vnykmshr/dispatch/pkg/common/errors"
)

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 10, false},
		{"positive value 1", 1, false},
		{"zero value", 0, true},
		{"negative value", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive("dispatch", "pool_size", tt.value)

			if tt.wantError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.IsValidationError(err) {
					t.Errorf("expected ValidationError, got %T", err)
				}
			} else if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateNonNegative(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 3, false},
		{"zero value", 0, false},
		{"negative value", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNonNegative("dispatch", "max_retries", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateNonNegative(%d) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidatePositiveDuration(t *testing.T) {
	tests := []struct {
		name      string
		value     time.Duration
		wantError bool
	}{
		{"one millisecond", time.Millisecond, false},
		{"thirty seconds", 30 * time.Second, false},
		{"zero", 0, true},
		{"negative", -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositiveDuration("dispatch", "timeout", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePositiveDuration(%v) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidateNotEmpty(t *testing.T) {
	if err := ValidateNotEmpty("dispatch", "name", "fileProcessor"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := ValidateNotEmpty("dispatch", "name", ""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestValidateMinLen(t *testing.T) {
	if err := ValidateMinLen("dispatch", "handlers", 2, 1); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := ValidateMinLen("dispatch", "handlers", 0, 1); err == nil {
		t.Error("expected error for empty collection")
	}
}

func TestValidationErrorDetails(t *testing.T) {
	err := ValidatePositive("dispatch", "pool_size", -5)
	if err == nil {
		t.Fatal("expected error")
	}

	valErr, ok := err.(*errors.ValidationError)
	if !ok {
		t.Fatal("could not cast to ValidationError")
	}

	if valErr.Module != "dispatch" {
		t.Errorf("Module = %q, want %q", valErr.Module, "dispatch")
	}
	if valErr.Field != "pool_size" {
		t.Errorf("Field = %q, want %q", valErr.Field, "pool_size")
	}
	if valErr.Value != -5 {
		t.Errorf("Value = %v, want %v", valErr.Value, -5)
	}
	if valErr.Hint != "value must be greater than 0" {
		t.Errorf("Hint = %q, want %q", valErr.Hint, "value must be greater than 0")
	}
}

func TestValidationErrorWrapping(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{"ValidatePositive", ValidatePositive("test", "field", -1)},
		{"ValidateNonNegative", ValidateNonNegative("test", "field", -1)},
		{"ValidatePositiveDuration", ValidatePositiveDuration("test", "field", 0)},
		{"ValidateNotEmpty", ValidateNotEmpty("test", "field", "")},
		{"ValidateMinLen", ValidateMinLen("test", "field", 0, 1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(tc.err, errors.ErrInvalidConfiguration) {
				t.Errorf("%v should wrap ErrInvalidConfiguration", tc.err)
			}
		})
	}
}
