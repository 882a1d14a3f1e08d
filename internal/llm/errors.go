package llm

import (
	"errors"
	"fmt"
)

// TransportError reports a backend call that could not complete: the
// connection failed, timed out, or kept answering with a retryable status
// until the retry budget ran out.
type TransportError struct {
	Backend    string
	Attempts   int
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: transport failure", e.Backend)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s: HTTP %d", e.Backend, e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a reachable backend whose answer does not have the
// expected shape. It is never retried.
type ProtocolError struct {
	Backend string
	Field   string // expected payload field, if that is what went missing
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: protocol error: %s (field %q)", e.Backend, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: protocol error: %s", e.Backend, e.Message)
}

// IsModelError reports whether err (or anything it wraps) is a
// TransportError or ProtocolError.
func IsModelError(err error) bool {
	var te *TransportError
	var pe *ProtocolError
	return errors.As(err, &te) || errors.As(err, &pe)
}
