package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured marks an optional section that was left empty.
var ErrNotConfigured = errors.New("not configured")

// Category groups configuration problems.
type Category string

const (
	CategoryMissing       Category = "missing"
	CategoryInvalid       Category = "invalid"
	CategoryNotConfigured Category = "not_configured"
)

// ConfigError reports a problem with one configuration key and, when known,
// how to fix it.
//
//nolint:revive // config.ConfigError reads better at call sites outside the package
type ConfigError struct {
	Category Category
	Field    string // dotted key, e.g. "hub.name"
	Message  string
	Hint     string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config: ")
	b.WriteString(e.Field)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Hint != "" {
		b.WriteString(" (")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap lets errors.Is(err, ErrNotConfigured) match not-configured errors.
func (e *ConfigError) Unwrap() error {
	if e.Category == CategoryNotConfigured {
		return ErrNotConfigured
	}
	return nil
}

// EnvVar returns the environment variable that overrides key.
func EnvVar(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func sourceHint(key string) string {
	return fmt.Sprintf("set %s or %s in %s", EnvVar(key), key, DefaultFile)
}

// NewMissingFieldError reports a required key with no value.
func NewMissingFieldError(field string) *ConfigError {
	return &ConfigError{Category: CategoryMissing, Field: field, Message: "required", Hint: sourceHint(field)}
}

// NewInvalidFieldError reports a value outside validOptions.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := &ConfigError{Category: CategoryInvalid, Field: field, Message: message}
	if len(validOptions) > 0 {
		err.Hint = "one of: " + strings.Join(validOptions, ", ")
	}
	return err
}

// NewValidationError reports a value that breaks a rule.
func NewValidationError(field, message string) *ConfigError {
	return &ConfigError{Category: CategoryInvalid, Field: field, Message: message}
}

// NewNotConfiguredError reports that section is needed by the caller but key is unset.
func NewNotConfiguredError(section, key string) *ConfigError {
	return &ConfigError{
		Category: CategoryNotConfigured,
		Field:    section,
		Message:  "not configured",
		Hint:     sourceHint(key),
	}
}

// IsNotConfigured reports whether err stems from an unset optional section.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
