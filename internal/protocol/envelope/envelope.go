// Package envelope defines the JSON request and response contract carried in
// each frame.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind selects the order family a request signs for.
type Kind string

const (
	KindSpot    Kind = "spot"
	KindFutures Kind = "futures"
)

// Kinds lists every accepted request kind.
func Kinds() []Kind {
	return []Kind{KindSpot, KindFutures}
}

func (k Kind) Valid() bool {
	switch k {
	case KindSpot, KindFutures:
		return true
	default:
		return false
	}
}

// Object is an opaque JSON object owned by the signer. Numbers decode as
// json.Number so values survive a round trip unchanged.
type Object map[string]any

// Request wire keys.
const (
	KeyType       = "type"
	KeyOrder      = "order"
	KeyInstrument = "instrument"
	KeySigner     = "signer"
)

// RequestKeys lists the exact key set of a request object, in wire order.
func RequestKeys() []string {
	return []string{KeyType, KeyOrder, KeyInstrument, KeySigner}
}

// SignRequest is one validated signing request.
type SignRequest struct {
	Kind       Kind   `json:"type"`
	Order      Object `json:"order"`
	Instrument Object `json:"instrument"`
	Signer     string `json:"signer"`
}

// EncodeRequest renders req as a single-line JSON payload.
func EncodeRequest(req SignRequest) ([]byte, error) {
	return json.Marshal(req)
}

// ErrTrailingData reports bytes after the first JSON value in a payload.
var ErrTrailingData = errors.New("envelope: trailing data after json value")

// Unmarshal decodes exactly one JSON value from data, keeping numbers as
// json.Number.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	return nil
}

// Failure is the error half of a response.
type Failure struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Type, f.Message)
}

// Response is either a success carrying a signature or a failure.
type Response struct {
	OK        bool
	Signature string
	Failure   *Failure
}

func Success(signature string) Response {
	return Response{OK: true, Signature: signature}
}

func Fail(errorType, message string, context map[string]any) Response {
	if context == nil {
		context = map[string]any{}
	}
	return Response{
		OK:      false,
		Failure: &Failure{Type: errorType, Message: message, Context: context},
	}
}

type successWire struct {
	OK        bool   `json:"ok"`
	Signature string `json:"signature"`
}

type failureWire struct {
	OK    bool     `json:"ok"`
	Error *Failure `json:"error"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.OK {
		return json.Marshal(successWire{OK: true, Signature: r.Signature})
	}
	f := r.Failure
	if f == nil {
		f = &Failure{}
	}
	if f.Context == nil {
		cp := *f
		cp.Context = map[string]any{}
		f = &cp
	}
	return json.Marshal(failureWire{OK: false, Error: f})
}

// EncodeResponse renders resp as a single-line JSON payload.
func EncodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

// ErrMalformedResponse reports a response payload that does not follow the
// envelope contract.
var ErrMalformedResponse = errors.New("envelope: malformed response")

type responseIn struct {
	OK        *bool   `json:"ok"`
	Signature *string `json:"signature"`
	Error     *struct {
		Type    *string        `json:"type"`
		Message *string        `json:"message"`
		Context map[string]any `json:"context"`
	} `json:"error"`
}

// DecodeResponse parses one response payload. Any deviation from the contract
// (bad JSON, missing discriminant, missing signature or error detail) returns
// an error wrapping ErrMalformedResponse.
func DecodeResponse(payload []byte) (Response, error) {
	var in responseIn
	if err := Unmarshal(payload, &in); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if in.OK == nil {
		return Response{}, fmt.Errorf("%w: missing ok", ErrMalformedResponse)
	}
	if *in.OK {
		if in.Signature == nil {
			return Response{}, fmt.Errorf("%w: missing signature", ErrMalformedResponse)
		}
		return Success(*in.Signature), nil
	}
	if in.Error == nil || in.Error.Type == nil || in.Error.Message == nil {
		return Response{}, fmt.Errorf("%w: missing error detail", ErrMalformedResponse)
	}
	return Fail(*in.Error.Type, *in.Error.Message, in.Error.Context), nil
}
