package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for gateway errors.
var (
	ErrInvalidConfig = errors.New("invalid gateway config")
	ErrTransport     = errors.New("gateway transport failed")
	ErrStatus        = errors.New("gateway non-success status")
	ErrParse         = errors.New("gateway response does not match schema")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrStatus.
func (e *StatusError) Unwrap() error { return ErrStatus }

// IsUnauthorized reports a 401.
func (e *StatusError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// ParseError is a response body that does not fit the endpoint's schema.
type ParseError struct {
	Endpoint string
	Field    string
	Err      error
}

func (e *ParseError) Error() string {
	msg := "parse " + e.Endpoint
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap lets errors.Is match ErrParse and the underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

func missing(endpoint, field string) error {
	return &ParseError{Endpoint: endpoint, Field: field, Err: errors.New("missing required field")}
}
