package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable covers transport failures, non-success statuses and
	// undecodable responses from the media server.
	ErrUpstreamUnavailable = errors.New("media server unavailable")
	// ErrEmptyIdentitySet is returned when the media server has no users.
	ErrEmptyIdentitySet = errors.New("media server returned no users")
)

// UpstreamError describes a failed call to the media server
type UpstreamError struct {
	Operation string
	Status    int
	Err       error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Operation, ErrUpstreamUnavailable)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap lets errors.Is match ErrUpstreamUnavailable as well as the cause,
// such as context.DeadlineExceeded when the upstream timeout fires.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamUnavailable}
	}
	return []error{ErrUpstreamUnavailable, e.Err}
}
