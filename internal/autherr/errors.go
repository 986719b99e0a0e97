// Package autherr defines the error kinds surfaced by the login and token
// exchange flow. Handlers map every kind to the same opaque HTTP 500; the kind
// only matters for logs.
package autherr

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnreachable covers transport failures and non-2xx answers
	// from the OAuth provider.
	ErrProviderUnreachable = errors.New("provider unreachable")

	// ErrProviderResponseMalformed is returned when a provider response is
	// missing required fields or cannot be decoded.
	ErrProviderResponseMalformed = errors.New("provider response malformed")

	// ErrStateMismatch is returned when the callback state does not match the
	// state issued to the browser at login.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrMalformedRequest covers missing or wrong-typed request parameters.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrExchangeKeyNotFound means the exchange key was never stored, was
	// already consumed, or expired.
	ErrExchangeKeyNotFound = errors.New("exchange key not found")

	// ErrStoreUnavailable wraps transport failures of the exchange store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnauthenticated is returned when an identity token is missing or
	// fails verification.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ProviderError carries the provider's raw payload for diagnostics.
// It unwraps to one of the provider sentinels above.
type ProviderError struct {
	Kind       error
	Op         string
	StatusCode int
	Payload    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Payload != "" {
		msg += ": payload=" + e.Payload
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Kind returns a stable snake_case name for err, for use as a log field.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrProviderResponseMalformed):
		return "provider_response_malformed"
	case errors.Is(err, ErrProviderUnreachable):
		return "provider_unreachable"
	case errors.Is(err, ErrExchangeKeyNotFound):
		return "exchange_key_not_found"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Malformed wraps a description of a bad request parameter.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRequest, fmt.Sprintf(format, args...))
}

// StoreUnavailable wraps a store transport failure.
func StoreUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
