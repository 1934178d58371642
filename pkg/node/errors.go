package node

import (
	"errors"
	"fmt"
)

// TransportError is returned when a request never produced an HTTP
// response: connection refused, timeout, DNS failure and the like.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when the node answered but the answer is not
// usable: a non-success status or a body that cannot be decoded.
type ProtocolError struct {
	Op         string
	StatusCode int
	// Message is the server-provided message, if the body carried one.
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)

	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError

	return errors.As(err, &te)
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError

	return errors.As(err, &pe)
}
