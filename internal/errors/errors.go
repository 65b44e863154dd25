// Package errors defines the gateway error taxonomy. Security rejections are
// decided entirely at the edge and carry deliberately generic messages;
// detailed diagnostics belong in logs, never in responses.
package errors

import "fmt"

// GatewayError is the base error type for all edge-boundary rejections.
type GatewayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`

	// RetryAfter is a retry hint in seconds for 429 responses.
	// Zero means no hint.
	RetryAfter int `json:"retry_after,omitempty"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// WithRetryAfter returns a copy of the error carrying a retry hint in seconds.
func (e *GatewayError) WithRetryAfter(seconds int) *GatewayError {
	clone := *e
	clone.RetryAfter = seconds
	return &clone
}

// Predefined errors. Unauthenticated never distinguishes an expired session
// from one that never existed.
var (
	ErrUnauthenticated     = &GatewayError{Code: 401, Message: "Authentication required"}
	ErrForbidden           = &GatewayError{Code: 403, Message: "Access denied"}
	ErrRateLimited         = &GatewayError{Code: 429, Message: "Too many requests", Hint: "Retry after the indicated interval"}
	ErrInvalidTarget       = &GatewayError{Code: 403, Message: "Destination not permitted"}
	ErrUpstreamUnavailable = &GatewayError{Code: 502, Message: "Backend unavailable"}
	ErrNotFound            = &GatewayError{Code: 404, Message: "Not found"}
	ErrInvalidRequest      = &GatewayError{Code: 400, Message: "Invalid request"}
	ErrCapacityReached     = &GatewayError{Code: 503, Message: "Gateway capacity reached", Hint: "Try again shortly"}
)
