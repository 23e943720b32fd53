package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies provider failures for retry and surfacing decisions.
type ErrorKind string

const (
	// KindConfig indicates missing or invalid provider credentials. Fatal,
	// never retried.
	KindConfig ErrorKind = "config"

	// KindAuth indicates the provider rejected the credentials (401).
	KindAuth ErrorKind = "auth"

	// KindBadRequest indicates a malformed or unsupported request (4xx).
	KindBadRequest ErrorKind = "bad_request"

	// KindRateLimit indicates the provider throttled the request (429).
	KindRateLimit ErrorKind = "rate_limit"

	// KindServer indicates a provider-side failure (5xx or malformed
	// response body).
	KindServer ErrorKind = "server"

	// KindConnection indicates a transport failure or timeout.
	KindConnection ErrorKind = "connection"

	// KindUnknown is the catch-all.
	KindUnknown ErrorKind = "unknown"
)

// Retryable reports whether a failure of this kind is transient.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServer, KindConnection:
		return true
	default:
		return false
	}
}

// Error is a structured provider failure. Raw preserves the upstream payload
// for diagnostics when the response shape was unexpected.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Raw        string
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// AsError extracts a provider *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// classifyStatus maps an upstream HTTP status to an error kind and message
// decoration.
func classifyStatus(status int, msg string) *Error {
	switch {
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, StatusCode: status, Message: msg}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, StatusCode: status, Message: msg}
	case status == http.StatusNotFound:
		return &Error{
			Kind:       KindBadRequest,
			StatusCode: status,
			Message:    msg + " (check that the configured model exists for this endpoint)",
		}
	case status >= 400 && status < 500:
		return &Error{Kind: KindBadRequest, StatusCode: status, Message: msg}
	case status >= 500:
		return &Error{Kind: KindServer, StatusCode: status, Message: msg}
	default:
		return &Error{Kind: KindUnknown, StatusCode: status, Message: msg}
	}
}
