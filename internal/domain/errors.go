package domain

import (
	"context"
	"errors"
)

// Sentinel errors returned by stores and tools.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrOrderNotOpen = errors.New("order is not open")
	ErrInvalidInput = errors.New("invalid input")
	ErrUpstream     = errors.New("upstream unavailable")
)

// ErrorKind is the user-facing error taxonomy recorded in request traces.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindPolicyViolation     ErrorKind = "policy_violation"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// KindOf maps err onto the taxonomy. Unknown errors are reported as
// upstream_unavailable since they originate outside the pipeline's rules.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrOrderNotOpen):
		return KindPolicyViolation
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrUpstream):
		return KindUpstreamUnavailable
	}
	return KindUpstreamUnavailable
}
