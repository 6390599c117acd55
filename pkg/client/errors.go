package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// maxBodySnippet caps the response body carried by HTTP-sourced errors.
const maxBodySnippet = 512

// APIError represents a non-success HTTP response that is not an
// authentication failure.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("confluence %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("confluence %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned for HTTP 401 and 403 responses and for a
// failed explicit credential check.
type AuthenticationError struct {
	StatusCode int
	Reason     string
	Body       string
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("authentication error (status %d %s): %s", e.StatusCode, e.Reason, e.Body)
	}
	return fmt.Sprintf("authentication error (status %d %s)", e.StatusCode, e.Reason)
}

// TransportError wraps a network or connection failure.
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a response body does not match the expected
// JSON shape.
type DecodeError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error for %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// URIError is returned when a base, continuation or synthesized URI cannot be
// parsed.
type URIError struct {
	URI string
	Err error
}

// Error implements the error interface.
func (e *URIError) Error() string {
	return fmt.Sprintf("invalid URI %q: %v", e.URI, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *URIError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when caller input is rejected before any
// network activity.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Message)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassAuth:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// snippet trims a response body to maxBodySnippet bytes.
func snippet(body []byte) string {
	if len(body) > maxBodySnippet {
		return string(body[:maxBodySnippet]) + "..."
	}
	return string(body)
}
