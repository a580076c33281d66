package ocrclient

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedLocation is returned when an accepted submission carries no
	// usable Operation-Location header.
	ErrMalformedLocation = errors.New("malformed operation location")

	// ErrSubmitTimeout is returned when backpressure outlasts the submission budget.
	ErrSubmitTimeout = errors.New("submission timed out")
)

// StatusError reports an HTTP status the protocol does not expect.
type StatusError struct {
	Op   string // "submit" or "poll"
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected http status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected http status %d: %s", e.Op, e.Code, e.Body)
}

// TransportError wraps a failed network round trip.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a response body that could not be parsed.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every analysis attempt for a page failed.
type ExhaustedError struct {
	Trace    Trace
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("analysis %s failed after %d attempt(s)", e.Trace, e.Attempts)
	}
	return fmt.Sprintf("analysis %s failed after %d attempt(s): %v", e.Trace, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// errAttemptFailed marks an attempt whose operation ended in a non-success state.
type errAttemptFailed struct {
	status   Status
	timedOut bool
}

func (e *errAttemptFailed) Error() string {
	if e.timedOut {
		return fmt.Sprintf("poll timed out in status %s", e.status)
	}
	return fmt.Sprintf("operation ended with status %s", e.status)
}

// IsFatal reports whether err must abort the whole run rather than fail a
// single attempt: unexpected statuses, malformed locations and undecodable
// responses.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	var de *DecodeError
	return errors.As(err, &se) || errors.As(err, &de) || errors.Is(err, ErrMalformedLocation)
}
