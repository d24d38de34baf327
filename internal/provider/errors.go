package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// maxErrorBody bounds how much of a failed response body is kept on a ServiceError.
const maxErrorBody = 2048

// AuthError reports a missing or rejected service credential.
type AuthError struct {
	Provider string
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Reason)
}

// TransportError reports a network-level failure: connection errors,
// timeouts, or a response body that could not be read.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError reports a non-success HTTP status from the remote service.
type ServiceError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: API error (status %d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// statusError converts a non-2xx status into the matching typed error.
// 401 and 403 are credential problems; everything else is a service failure.
func statusError(provider string, status int, body []byte) error {
	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "…"
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		reason := fmt.Sprintf("status %d", status)
		if msg != "" {
			reason += ": " + msg
		}
		return &AuthError{Provider: provider, Reason: reason}
	}
	return &ServiceError{Provider: provider, StatusCode: status, Body: msg}
}

// IsTimeout reports whether err is a TransportError caused by a deadline.
func IsTimeout(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return errors.Is(te.Err, context.DeadlineExceeded)
}

// Kind returns a short label for the error type, used for metrics and logs.
func Kind(err error) string {
	var (
		auth      *AuthError
		transport *TransportError
		service   *ServiceError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &auth):
		return "auth"
	case errors.As(err, &transport):
		return "transport"
	case errors.As(err, &service):
		return "service"
	default:
		return "other"
	}
}
