package model

import "errors"

// Sentinel errors for the failure taxonomy. Components wrap these with
// fmt.Errorf("...: %w", ...) and callers match with errors.Is.
var (
	// ErrNotFound reports an unknown session, file, or participant.
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports a viewer attempting a mutating operation.
	ErrForbidden = errors.New("forbidden")
	// ErrCapacity reports that the connection ceiling has been reached.
	ErrCapacity = errors.New("too many connections")
	// ErrMalformed reports an unparsable or unknown inbound message.
	ErrMalformed = errors.New("malformed message")
	// ErrTimeout reports a sandbox execution exceeding its wall clock.
	ErrTimeout = errors.New("execution timed out")
	// ErrUnsupported reports a sandbox language with no interpreter.
	ErrUnsupported = errors.New("unsupported language")
	// ErrUpstreamUnavailable reports a failed AI collaborator call.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ErrorCode maps an error to its wire-level code. Unrecognized errors
// map to "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrCapacity):
		return "capacity"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal"
	}
}
