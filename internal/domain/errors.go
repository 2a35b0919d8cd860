package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the job tracker. TrackingError values match them
// through errors.Is.
var (
	ErrSubmit            = errors.New("submit failed")
	ErrRemote            = errors.New("remote job failed")
	ErrTimeout           = errors.New("polling attempts exhausted")
	ErrMalformedResponse = errors.New("malformed response")
	ErrTransport         = errors.New("transport failure")
)

// TrackingError is a terminal tracker failure.
type TrackingError struct {
	Kind   error
	Status int
	Reason string
	Err    error
}

func (e *TrackingError) Error() string {
	msg := e.Kind.Error()
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TrackingError) Unwrap() error { return e.Err }

func (e *TrackingError) Is(target error) bool { return target == e.Kind }

// TransportError wraps a network-level failure, distinct from an HTTP error
// status.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// HTTPError reports a non-2xx answer together with the best message found in
// the body.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// StatusOf extracts the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}
