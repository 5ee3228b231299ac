package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

const maxErrorDetail = 500

// APIError is a non-success response from the paperless API
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// AuthError is returned for 401 and 403 responses
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// ConnectionError wraps transport failures reaching paperless
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func newResponseError(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return &AuthError{StatusCode: statusCode, Message: "invalid or expired API token"}
	case http.StatusForbidden:
		return &AuthError{StatusCode: statusCode, Message: "insufficient permissions"}
	}
	detail := string(body)
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail]
	}
	return &APIError{StatusCode: statusCode, Detail: detail}
}

// IsTransient reports whether err is an infrastructure failure worth
// retrying on the next cycle.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= 500:
			return true
		}
		return false
	}
	return false
}
