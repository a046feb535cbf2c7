package types

import (
	"errors"
	"fmt"
)

// Page is one page of a cursor-paginated list
type Page[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// Pagination bounds shared by every list endpoint
const (
	MinLimit     = 1
	MaxLimit     = 1000
	DefaultLimit = 100
)

// ErrValidation is matched by every ValidationError
var ErrValidation = errors.New("validation failed")

// ValidationError describes a rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ValidateLimit rejects page sizes outside [MinLimit, MaxLimit]
func ValidateLimit(limit int) error {
	if limit < MinLimit || limit > MaxLimit {
		return NewValidationError("limit", "must be between %d and %d", MinLimit, MaxLimit)
	}
	return nil
}
