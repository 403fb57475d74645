// Package apperr defines the error taxonomy shared by the OAuth clients, the
// request forwarder and the route layer, together with its HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingConfiguration indicates required provider configuration is absent.
	ErrMissingConfiguration = errors.New("missing configuration")

	// ErrMissingCredential indicates the request carried no usable credential.
	ErrMissingCredential = errors.New("missing credential")

	// ErrStateMismatch indicates the OAuth2 callback state did not match the issued state.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrAuthorizationDenied indicates the user denied the authorization request.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrMissingOAuthParameters indicates a callback lacked required query parameters.
	ErrMissingOAuthParameters = errors.New("missing oauth parameters")

	// ErrUpstreamUnavailable indicates a network-level failure reaching the provider.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamTimeout indicates the provider did not answer within the deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrRefreshNotSupported is returned by OAuth1 providers, which have no
	// refresh operation; a new authorization handshake is required.
	ErrRefreshNotSupported = errors.New("refresh not supported")

	// ErrTokenNotFound indicates an internal bearer token is unknown or expired.
	ErrTokenNotFound = errors.New("token not found")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid request: %s", e.Field)
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// Validation creates a ValidationError for a field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UpstreamError reports a non-2xx response from a provider API. The original
// status code is preserved so routes can forward it through.
type UpstreamError struct {
	Status  int
	Details string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Details)
}

// Code returns the wire error code for an error, used both in JSON error
// bodies and in redirect query parameters.
func Code(err error) string {
	var ve *ValidationError
	var ue *UpstreamError
	switch {
	case errors.As(err, &ve):
		return "validation_error"
	case errors.As(err, &ue):
		return "upstream_error"
	case errors.Is(err, ErrMissingConfiguration):
		return "missing_configuration"
	case errors.Is(err, ErrMissingCredential):
		return "unauthorized"
	case errors.Is(err, ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, ErrAuthorizationDenied):
		return "access_denied"
	case errors.Is(err, ErrMissingOAuthParameters):
		return "missing_oauth_parameters"
	case errors.Is(err, ErrUpstreamTimeout):
		return "upstream_timeout"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ErrRefreshNotSupported):
		return "refresh_not_supported"
	case errors.Is(err, ErrTokenNotFound):
		return "unauthorized"
	}
	return "internal_error"
}

// HTTPStatus maps an error to the status code the route layer responds with.
// Upstream statuses are forwarded through unchanged.
func HTTPStatus(err error) int {
	var ve *ValidationError
	var ue *UpstreamError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ue):
		if ue.Status > 0 {
			return ue.Status
		}
		return http.StatusBadGateway
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrTokenNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMissingOAuthParameters):
		return http.StatusBadRequest
	case errors.Is(err, ErrStateMismatch), errors.Is(err, ErrAuthorizationDenied):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRefreshNotSupported):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrMissingConfiguration):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
