// Package errors defines the error taxonomy shared by the conversation engine.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrInvalidMessage  = errors.New("invalid message")
	ErrNoMessages      = errors.New("no valid messages")
	ErrMissingAPIKey   = errors.New("missing API key")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrEmptyResponse   = errors.New("empty response from API")
	ErrScheduling      = errors.New("reveal scheduling failed")
)

// ValidationError reports an empty or malformed message or payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Is allows comparison with sentinel errors
func (e *ValidationError) Is(target error) bool {
	if target == ErrInvalidMessage {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConfigError reports a missing or unusable configuration value.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Message)
}

func (e *ConfigError) Is(target error) bool {
	_, ok := target.(*ConfigError)
	return ok
}

// NewConfigError creates a new ConfigError
func NewConfigError(key, message string) *ConfigError {
	return &ConfigError{Key: key, Message: message}
}

// UpstreamError represents a failure of the completion provider: missing
// credentials, transport or service failure, or a malformed response.
type UpstreamError struct {
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upstream error: %s", e.Detail)
	}
	return fmt.Sprintf("upstream error: %s: %v", e.Detail, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates a new UpstreamError
func NewUpstreamError(detail string, err error) *UpstreamError {
	return &UpstreamError{Detail: detail, Err: err}
}

// SchedulingError represents an internal fault while pacing a reveal.
type SchedulingError struct {
	Message string
	Err     error
}

func (e *SchedulingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scheduling error: %s", e.Message)
	}
	return fmt.Sprintf("scheduling error: %s: %v", e.Message, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

func (e *SchedulingError) Is(target error) bool {
	return target == ErrScheduling
}

// NewSchedulingError creates a new SchedulingError
func NewSchedulingError(message string, err error) *SchedulingError {
	return &SchedulingError{Message: message, Err: err}
}

// IsUpstream reports whether err came from the completion provider.
func IsUpstream(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream)
}

// Detail returns the human-readable detail carried by err, falling back to
// its message.
func Detail(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Detail
	}
	var sched *SchedulingError
	if errors.As(err, &sched) {
		return sched.Message
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	return err.Error()
}
