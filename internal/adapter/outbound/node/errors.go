package node

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrUnauthorized means the node rejected our token or API key (HTTP
	// 401). Callers must treat this as session expiry, never as a
	// connectivity problem, and never mask it with cached data.
	ErrUnauthorized = errors.New("node rejected credentials")

	// ErrNotFound means the endpoint or resource does not exist (HTTP
	// 404). Node API surface varies by deployment, so callers typically
	// fall back to an alternate strategy rather than failing hard.
	ErrNotFound = errors.New("not found")
)

// ConnectionError wraps transport-level failures: DNS, refused connections,
// TLS handshakes, timeouts. It is never produced for an HTTP-level error.
type ConnectionError struct {
	Cause error
}

// Error returns a human-readable description of the connection failure.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach node: %v", e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ValidationError carries server-supplied detail for a rejected request
// (HTTP 422 or a malformed offer/request URI).
type ValidationError struct {
	Detail string
}

// Error returns the server-supplied detail.
func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "node rejected the request as invalid"
	}
	return fmt.Sprintf("node rejected the request: %s", e.Detail)
}

// ShapeError means a response decoded as JSON but matched none of the known
// response variants. The consumer probes every known nesting before giving
// up, so this is a genuine contract mismatch, not a transient fault.
type ShapeError struct {
	Endpoint string
}

// Error returns a human-readable description of the shape mismatch.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("unexpected response shape from %s", e.Endpoint)
}

// APIError is any other non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

// Error returns the status and a body excerpt.
func (e *APIError) Error() string {
	return fmt.Sprintf("node returned %d: %s", e.StatusCode, e.Body)
}
