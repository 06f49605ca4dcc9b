// Package errors provides custom error types for the swarmcast distribution layer.
// These errors enable programmatic error checking with errors.Is / errors.As and
// keep per-connection failures isolated and classifiable.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the swarmcast system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransport indicates a connection-level failure
	ErrTransport = errors.New("transport error")

	// ErrQueueOverflow indicates an outbound queue had to evict or drop events
	ErrQueueOverflow = errors.New("queue overflow")

	// ErrMalformedEvent indicates a producer emitted an event that violates the contract
	ErrMalformedEvent = errors.New("malformed event")

	// ErrSubscription indicates an invalid topic pattern in a subscribe request
	ErrSubscription = errors.New("subscription error")

	// ErrClosed indicates an operation on a closed component
	ErrClosed = errors.New("closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrRateLimited indicates the server rejected a request for rate
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the server could not serve the request
	ErrUnavailable = errors.New("server unavailable")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// TransportError represents a connection-level failure. It triggers the
// Disconnected transition for the affected connection only.
type TransportError struct {
	ConnID    string
	Operation string // "write", "read", "handshake", "ping"
	Err       error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.ConnID != "" {
		return fmt.Sprintf("transport error on %s during %s: %v", e.ConnID, e.Operation, e.Err)
	}
	return fmt.Sprintf("transport error during %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError creates a new TransportError
func NewTransportError(connID, operation string, err error) *TransportError {
	return &TransportError{ConnID: connID, Operation: operation, Err: err}
}

// APIError represents an error response from a swarmcast server.
type APIError struct {
	Endpoint   string
	StatusCode int
	Code       string
	Message    string
	Details    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	msg := fmt.Sprintf("API error from %s (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Is implements errors.Is support
func (e *APIError) Is(target error) bool {
	switch {
	case e.StatusCode == 404:
		return target == ErrNotFound
	case e.StatusCode == 429:
		return target == ErrRateLimited
	case e.StatusCode >= 500:
		return target == ErrUnavailable
	case e.Code == "MALFORMED_EVENT":
		return target == ErrMalformedEvent
	case e.StatusCode == 400:
		return target == ErrInvalidInput
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(endpoint string, statusCode int, message string) *APIError {
	return &APIError{Endpoint: endpoint, StatusCode: statusCode, Message: message}
}

// QueueOverflowError describes an eviction or drop in an outbound queue.
// It is informational: the queue has already recovered via its eviction policy.
type QueueOverflowError struct {
	ConnID   string
	Kind     string
	Evicted  int
	Dropped  int
	Capacity int
}

// Error implements the error interface
func (e *QueueOverflowError) Error() string {
	return fmt.Sprintf("queue overflow on %s (capacity %d): evicted %d, dropped %d %s events",
		e.ConnID, e.Capacity, e.Evicted, e.Dropped, e.Kind)
}

// Is implements errors.Is support
func (e *QueueOverflowError) Is(target error) bool {
	return target == ErrQueueOverflow
}

// MalformedEventError represents a producer contract violation rejected at emit time
type MalformedEventError struct {
	Topic  string
	Kind   string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *MalformedEventError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("malformed event for topic %q (kind %q): %s", e.Topic, e.Kind, e.Reason)
	}
	return fmt.Sprintf("malformed event: %s", e.Reason)
}

// Unwrap implements errors.Unwrap
func (e *MalformedEventError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *MalformedEventError) Is(target error) bool {
	return target == ErrMalformedEvent || target == ErrInvalidInput
}

// NewMalformedEventError creates a new MalformedEventError
func NewMalformedEventError(topic, kind, reason string, err error) *MalformedEventError {
	return &MalformedEventError{Topic: topic, Kind: kind, Reason: reason, Err: err}
}

// SubscriptionError represents an invalid subscription request.
// The connection remains usable.
type SubscriptionError struct {
	Pattern string
	Reason  string
}

// Error implements the error interface
func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("invalid subscription %q: %s", e.Pattern, e.Reason)
}

// Is implements errors.Is support
func (e *SubscriptionError) Is(target error) bool {
	return target == ErrSubscription || target == ErrInvalidInput
}

// NewSubscriptionError creates a new SubscriptionError
func NewSubscriptionError(pattern, reason string) *SubscriptionError {
	return &SubscriptionError{Pattern: pattern, Reason: reason}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsTransport checks if an error is a transport error
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsQueueOverflow checks if an error reports a queue overflow
func IsQueueOverflow(err error) bool {
	return errors.Is(err, ErrQueueOverflow)
}

// IsMalformedEvent checks if an error is a malformed event rejection
func IsMalformedEvent(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}

// IsSubscription checks if an error is a subscription error
func IsSubscription(err error) bool {
	return errors.Is(err, ErrSubscription)
}

// IsClosed checks if an error reports a closed component
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapTransport wraps an error as a TransportError
func WrapTransport(connID, operation string, err error) error {
	if err == nil {
		return nil
	}
	return NewTransportError(connID, operation, err)
}

// WrapConfig wraps an error as a ConfigError
func WrapConfig(component string, err error) error {
	if err == nil {
		return nil
	}
	return NewConfigError(component, err.Error(), err)
}

// As is a convenience re-export of errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience re-export of errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
