// Package foundation holds small shared primitives: field-level validation results
// that convert into classified validation errors.
package foundation

import (
	"fmt"
	"strings"

	"github.com/wg-federation/wg-federation/internal/foundation/errors"
)

// Validator represents a validation function.
type Validator[T any] func(T) ValidationResult

// ValidationResult contains the result of a validation operation.
type ValidationResult struct {
	Valid  bool
	Errors []FieldError
}

// FieldError represents a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (fe FieldError) Error() string {
	if fe.Field != "" {
		return fmt.Sprintf("field '%s': %s", fe.Field, fe.Message)
	}
	return fe.Message
}

// Valid creates a successful validation result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid creates a failed validation result with errors.
func Invalid(errs ...FieldError) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// NewValidationError creates a field validation error.
func NewValidationError(field, code, message string) FieldError {
	return FieldError{Field: field, Code: code, Message: message}
}

// Combine merges multiple validation results.
func (vr ValidationResult) Combine(other ValidationResult) ValidationResult {
	if vr.Valid && other.Valid {
		return Valid()
	}
	all := make([]FieldError, 0, len(vr.Errors)+len(other.Errors))
	all = append(all, vr.Errors...)
	all = append(all, other.Errors...)
	return Invalid(all...)
}

// ToError converts a validation result to a classified validation error if invalid.
func (vr ValidationResult) ToError() error {
	if vr.Valid {
		return nil
	}
	messages := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		messages = append(messages, err.Error())
	}
	return errors.ValidationError(strings.Join(messages, "; ")).
		WithContext("fields", len(vr.Errors)).
		Build()
}

// Check returns Invalid with a single field error when ok is false.
func Check(ok bool, field, code, message string) ValidationResult {
	if ok {
		return Valid()
	}
	return Invalid(NewValidationError(field, code, message))
}

// NotEmpty validates that a string field is set.
func NotEmpty(field, value string) ValidationResult {
	return Check(strings.TrimSpace(value) != "", field, "required", "must not be empty")
}

// PortInRange validates a UDP port; zero means "no listen port".
func PortInRange(field string, port int) ValidationResult {
	return Check(port >= 0 && port <= 65535, field, "port_range", fmt.Sprintf("port %d out of range 0-65535", port))
}

// OneOf validates that a value is in a set of allowed values.
func OneOf[T comparable](field string, allowed []T) Validator[T] {
	allowedSet := make(map[T]bool, len(allowed))
	for _, item := range allowed {
		allowedSet[item] = true
	}
	return func(value T) ValidationResult {
		return Check(allowedSet[value], field, "one_of", fmt.Sprintf("must be one of: %v", allowed))
	}
}
