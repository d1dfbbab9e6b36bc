// Package errors defines the structured error taxonomy for the cache service.
//
// Three error types matter to callers: transport errors (the remote store is
// unreachable and the operation degraded), serialization errors (the payload
// cannot be represented on the wire), and producer errors (a caller-supplied
// fallback producer failed and no tier could satisfy the read).
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeTransport represents remote store connectivity/timeout errors
	ErrTypeTransport ErrorType = "transport"
	// ErrTypeSerialization represents payload encoding/decoding errors
	ErrTypeSerialization ErrorType = "serialization"
	// ErrTypeProducer represents fallback producer failures
	ErrTypeProducer ErrorType = "producer"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeNotFound represents cache miss / missing resource errors
	ErrTypeNotFound ErrorType = "not_found"
)

// AppError represents a structured cache-service error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// TransportError creates a new transport error
func TransportError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeTransport,
		Message: msg,
		Cause:   cause,
	}
}

// SerializationError creates a new serialization error
func SerializationError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeSerialization,
		Message: msg,
		Cause:   cause,
	}
}

// ProducerError creates a new producer error
func ProducerError(key string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeProducer,
		Message: fmt.Sprintf("fallback producer failed for %q", key),
		Cause:   cause,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsTransport reports whether err is a transport error
func IsTransport(err error) bool {
	return IsType(err, ErrTypeTransport)
}

// IsSerialization reports whether err is a serialization error
func IsSerialization(err error) bool {
	return IsType(err, ErrTypeSerialization)
}

// IsProducer reports whether err is a producer error
func IsProducer(err error) bool {
	return IsType(err, ErrTypeProducer)
}
