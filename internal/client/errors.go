package client

import (
	"errors"
	"fmt"
)

// Endpoint failure classes. Every error returned by Execute wraps one of them.
var (
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	ErrEndpointTimeout     = errors.New("endpoint timeout")
	ErrEndpointStatus      = errors.New("endpoint returned error status")
)

// EndpointError describes a failed call to one endpoint.
type EndpointError struct {
	Endpoint   string
	StatusCode int    // set for ErrEndpointStatus
	Body       string // error response body, truncated
	Kind       error
	Cause      error
}

func (e *EndpointError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: status %d: %s", e.Endpoint, e.Kind, e.StatusCode, e.Body)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s (%v)", e.Endpoint, e.Kind, e.Cause)
	default:
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Kind)
	}
}

// Is matches the failure class.
func (e *EndpointError) Is(target error) bool {
	return target == e.Kind
}

func (e *EndpointError) Unwrap() error {
	return e.Cause
}
