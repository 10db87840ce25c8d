package courier

import (
	"errors"
	"fmt"
)

// ProviderError represents a failure calling a specific courier provider.
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Provider, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for ProviderError.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// WithCause adds a cause to the error.
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *ProviderError) WithStatusCode(code int) *ProviderError {
	e.StatusCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *ProviderError) WithRetryable(retryable bool) *ProviderError {
	e.Retryable = retryable
	return e
}

// Sentinel errors for the orchestration layer.
var (
	// ErrUnserviceable indicates a location has no area mapping for the
	// provider. Expected during selection; the provider is skipped.
	ErrUnserviceable = errors.New("location not serviceable")

	// ErrNoCourierAvailable indicates every active provider was
	// unserviceable or failed for the requested route.
	ErrNoCourierAvailable = errors.New("no courier available for this route")

	// ErrProviderNotFound indicates the requested provider is not registered.
	ErrProviderNotFound = errors.New("courier provider not found")

	// ErrCredentialMissing indicates no active credential exists for the
	// provider/environment scope.
	ErrCredentialMissing = errors.New("courier credential missing")

	// ErrTokenRefreshFailed indicates an OAuth token could not be
	// refreshed or reissued. Never falls back to a stale token.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrAuthenticationFailed indicates the provider rejected our credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrOrderNotFound indicates no courier order matches the identifier.
	ErrOrderNotFound = errors.New("courier order not found")

	// ErrInvalidStatusTransition indicates a disallowed state-machine move.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrCODNotSupported indicates the selected provider cannot collect
	// cash on delivery.
	ErrCODNotSupported = errors.New("provider does not support cash on delivery")
)

// InvalidTransitionError describes a rejected status change, naming the
// order's current status so callers can self-correct.
func InvalidTransitionError(current, requested Status) error {
	return fmt.Errorf("%w: order is %s, cannot move to %s",
		ErrInvalidStatusTransition, current, requested)
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}
