package errs

import (
	"errors"
	"fmt"
)

const (
	CategoryConfiguration = "configuration"
	CategoryAddressing    = "addressing"
	CategoryUnsupported   = "unsupported"
)

// Sentinels for errors.Is checks against a category.
var (
	ErrConfiguration = &Error{Category: CategoryConfiguration}
	ErrAddressing    = &Error{Category: CategoryAddressing}
	ErrUnsupported   = &Error{Category: CategoryUnsupported}
)

// Error represents a stable, categorized routing failure.
type Error struct {
	Category string
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

// Is matches any error of the same category.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}

	return e.Category == other.Category
}

// NewError creates a categorized error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// Configuration reports a setup-time mistake: malformed patterns, conflicting
// registrations or registration after the run phase started.
func Configuration(format string, args ...any) error {
	return NewError(CategoryConfiguration, fmt.Sprintf(format, args...))
}

// Addressing reports a reply that cannot be addressed.
func Addressing(format string, args ...any) error {
	return NewError(CategoryAddressing, fmt.Sprintf(format, args...))
}

// Unsupported reports an operation that is intentionally not implemented.
func Unsupported(format string, args ...any) error {
	return NewError(CategoryUnsupported, fmt.Sprintf(format, args...))
}

// CategoryFromError returns the category for an error when available.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	return ""
}
