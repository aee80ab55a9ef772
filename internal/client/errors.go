package client

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed rejects every request still pending when the
	// connection ends. The transport cause, if any, is wrapped alongside it.
	ErrConnectionClosed = errors.New("client: connection closed")
	// ErrUnsolicitedResponse reports a response frame that arrived while no
	// request was pending. The connection is aborted when it happens.
	ErrUnsolicitedResponse = errors.New("client: response with no pending request")
)

// ErrorResponse is a well-formed failure returned by the daemon.
type ErrorResponse struct {
	Type    string
	Message string
	Context map[string]any
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// UnprocessableResponse is a response frame that could not be interpreted.
// Line holds the raw frame bytes.
type UnprocessableResponse struct {
	Line  []byte
	Cause error
}

func (e *UnprocessableResponse) Error() string {
	return fmt.Sprintf("client: unprocessable response %q: %v", e.Line, e.Cause)
}

func (e *UnprocessableResponse) Unwrap() error {
	return e.Cause
}

func connClosed(cause error) error {
	if cause == nil {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
}
