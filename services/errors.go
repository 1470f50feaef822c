package services

import (
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeConfig       ErrorType = "config"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeProvider     ErrorType = "provider"
	ErrorTypeCircuitOpen  ErrorType = "circuit_open"
	ErrorTypeExhausted    ErrorType = "exhausted"
	ErrorTypeNoCapable    ErrorType = "no_capable_provider"
	ErrorTypeRouterClosed ErrorType = "router_closed"
	ErrorTypeInternal     ErrorType = "internal"
)

// RouterError represents a structured error with additional context
type RouterError struct {
	Type     ErrorType
	Message  string
	Provider string
	Err      error
}

// Error implements the error interface
func (e *RouterError) Error() string {
	switch {
	case e.Provider != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s [provider=%s] (%v)", e.Type, e.Message, e.Provider, e.Err)
	case e.Provider != "":
		return fmt.Sprintf("%s: %s [provider=%s]", e.Type, e.Message, e.Provider)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
}

// Unwrap implements errors.Unwrap
func (e *RouterError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is; two router errors match when their types match,
// so callers can compare against the sentinel vars below.
func (e *RouterError) Is(target error) bool {
	t, ok := target.(*RouterError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithProvider attributes the error to a specific provider
func (e *RouterError) WithProvider(name string) *RouterError {
	e.Provider = name
	return e
}

// NewRouterError creates a new router error
func NewRouterError(errType ErrorType, message string, err error) *RouterError {
	return &RouterError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Error taxonomy sentinels. Compare with errors.Is.

var (
	// ErrConfig is fatal and only produced at construction time.
	ErrConfig = NewRouterError(ErrorTypeConfig, "invalid configuration", nil)

	// ErrProviderTimeout marks a single attempt that exceeded its deadline.
	// It is absorbed by the retry loop and never surfaced on its own.
	ErrProviderTimeout = NewRouterError(ErrorTypeTimeout, "provider call timed out", nil)

	// ErrProvider marks a backend-reported failure for a single attempt.
	ErrProvider = NewRouterError(ErrorTypeProvider, "provider call failed", nil)

	// ErrCircuitOpen means the provider was skipped without being contacted.
	ErrCircuitOpen = NewRouterError(ErrorTypeCircuitOpen, "circuit breaker open", nil)

	// ErrAllProvidersExhausted is surfaced after every ordered candidate failed.
	ErrAllProvidersExhausted = NewRouterError(ErrorTypeExhausted, "all providers exhausted", nil)

	// ErrNoCapableProvider is returned before any network attempt when no
	// enabled provider supports the requested feature.
	ErrNoCapableProvider = NewRouterError(ErrorTypeNoCapable, "no provider supports the requested feature", nil)

	// ErrRouterClosed is returned for every operation after shutdown completes.
	ErrRouterClosed = NewRouterError(ErrorTypeRouterClosed, "router is closed", nil)
)

// NewConfigError creates a construction-time configuration error
func NewConfigError(message string, err error) *RouterError {
	return NewRouterError(ErrorTypeConfig, message, err)
}

// NewTimeoutError creates a per-attempt timeout error attributed to a provider
func NewTimeoutError(provider string, err error) *RouterError {
	return NewRouterError(ErrorTypeTimeout, "provider call timed out", err).WithProvider(provider)
}

// NewProviderFailure creates a per-attempt backend failure attributed to a provider
func NewProviderFailure(provider string, err error) *RouterError {
	return NewRouterError(ErrorTypeProvider, "provider call failed", err).WithProvider(provider)
}
