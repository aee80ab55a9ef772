// Package signer is the boundary to the external signing capability.
//
// A Gateway turns a validated request into a signature string. Failures are
// returned as errors and surfaced to the caller verbatim; they are never
// retried, since requests carry no idempotency key.
package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/ordersigner/internal/protocol/envelope"
)

// DefaultErrorType tags failures that carry no type of their own.
const DefaultErrorType = "SigningError"

// Gateway signs validated requests. Implementations must be safe for
// concurrent use by multiple connections.
type Gateway interface {
	Sign(ctx context.Context, req envelope.SignRequest) (string, error)
}

// GatewayFunc adapts a function into a Gateway.
type GatewayFunc func(ctx context.Context, req envelope.SignRequest) (string, error)

func (f GatewayFunc) Sign(ctx context.Context, req envelope.SignRequest) (string, error) {
	return f(ctx, req)
}

// Typed is implemented by failures that name their own type tag.
type Typed interface {
	ErrorType() string
}

// Contextual is implemented by failures that carry structured detail.
type Contextual interface {
	ErrorContext() map[string]any
}

// Error is a domain failure raised by a gateway.
type Error struct {
	Type    string
	Message string
	Context map[string]any
}

func NewError(errorType, message string, context map[string]any) *Error {
	return &Error{Type: errorType, Message: message, Context: context}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) ErrorType() string {
	return e.Type
}

func (e *Error) ErrorContext() map[string]any {
	return e.Context
}

// Describe extracts the response failure for err. The first Typed and
// Contextual errors in the chain supply the tag and context.
func Describe(err error) envelope.Failure {
	f := envelope.Failure{
		Type:    DefaultErrorType,
		Message: err.Error(),
		Context: map[string]any{},
	}
	var typed Typed
	if errors.As(err, &typed) {
		if t := typed.ErrorType(); t != "" {
			f.Type = t
		}
	}
	var ctxErr Contextual
	if errors.As(err, &ctxErr) {
		if c := ctxErr.ErrorContext(); c != nil {
			f.Context = c
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		f.Type = "Cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		f.Type = "Timeout"
	}
	return f
}

// PanicError wraps a value recovered from a panicking gateway.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("signer panicked: %v", e.Value)
}

func (e *PanicError) ErrorType() string {
	return "InternalError"
}

// SafeSign calls g and converts a panic into a *PanicError.
func SafeSign(ctx context.Context, g Gateway, req envelope.SignRequest) (sig string, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = ""
			err = &PanicError{Value: r}
		}
	}()
	return g.Sign(ctx, req)
}
