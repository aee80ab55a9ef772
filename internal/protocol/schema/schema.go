package schema

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/ordersigner/internal/protocol/envelope"
	"github.com/rs/zerolog/log"
)

// Error codes reported per field.
const (
	CodeEmpty         = "empty"
	CodeWrongEncoding = "wrong_encoding"
	CodeInvalidJSON   = "invalid_json"
	CodeWrongType     = "wrong_type"
	CodeMissingKey    = "missing_key"
	CodeExtraKey      = "extra_key"
	CodeChoiceInvalid = "choice_invalid"
)

// RootKey holds errors about the frame as a whole rather than one field.
const RootKey = ""

// FieldError is one structured validation failure.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError maps a field name to its failures in detection order.
type ValidationError map[string][]FieldError

func (e ValidationError) add(key, code, message string) {
	e[key] = append(e[key], FieldError{Code: code, Message: message})
}

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		name := k
		if name == RootKey {
			name = "<request>"
		}
		for _, fe := range e[k] {
			parts = append(parts, fmt.Sprintf("%s:%s", name, fe.Code))
		}
	}
	return "schema: invalid request: " + strings.Join(parts, ",")
}

// Codes returns the codes recorded under key.
func (e ValidationError) Codes(key string) []string {
	out := make([]string, 0, len(e[key]))
	for _, fe := range e[key] {
		out = append(out, fe.Code)
	}
	return out
}

// Context renders the error as a response context object.
func (e ValidationError) Context() map[string]any {
	out := make(map[string]any, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Validate decodes one request frame. A nil ValidationError means req is fully
// populated; otherwise every problem found is reported at once.
func Validate(raw []byte) (envelope.SignRequest, ValidationError) {
	verr := ValidationError{}

	if !utf8.Valid(raw) {
		verr.add(RootKey, CodeWrongEncoding, "Request is not valid UTF-8 text.")
		return reject(verr)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		verr.add(RootKey, CodeEmpty, "Request is empty.")
		return reject(verr)
	}

	var parsed any
	if err := envelope.Unmarshal(raw, &parsed); err != nil {
		verr.add(RootKey, CodeInvalidJSON, "Request is not valid JSON.")
		return reject(verr)
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		verr.add(RootKey, CodeWrongType, fmt.Sprintf("Request must be a JSON object, not %s.", jsonTypeName(parsed)))
		return reject(verr)
	}

	for _, key := range envelope.RequestKeys() {
		if _, found := obj[key]; !found {
			verr.add(key, CodeMissingKey, "This key is required.")
		}
	}
	extras := make([]string, 0)
	for key := range obj {
		if !isRequestKey(key) {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		verr.add(key, CodeExtraKey, fmt.Sprintf("Unexpected key %q.", key))
	}

	var req envelope.SignRequest
	if v, found := obj[envelope.KeyType]; found {
		if s, ok := requireString(verr, envelope.KeyType, v); ok {
			kind := envelope.Kind(s)
			if kind.Valid() {
				req.Kind = kind
			} else {
				verr.add(envelope.KeyType, CodeChoiceInvalid,
					fmt.Sprintf("Value must be one of %s.", choiceList()))
			}
		}
	}
	if v, found := obj[envelope.KeyOrder]; found {
		req.Order, _ = requireObject(verr, envelope.KeyOrder, v)
	}
	if v, found := obj[envelope.KeyInstrument]; found {
		req.Instrument, _ = requireObject(verr, envelope.KeyInstrument, v)
	}
	if v, found := obj[envelope.KeySigner]; found {
		req.Signer, _ = requireString(verr, envelope.KeySigner, v)
	}

	if len(verr) != 0 {
		return reject(verr)
	}
	return req, nil
}

func reject(verr ValidationError) (envelope.SignRequest, ValidationError) {
	log.Debug().Str("errors", verr.Error()).Msg("schema.Validate rejected")
	return envelope.SignRequest{}, verr
}

func requireString(verr ValidationError, key string, v any) (string, bool) {
	if v == nil {
		verr.add(key, CodeEmpty, "This value is required.")
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		verr.add(key, CodeWrongType, fmt.Sprintf("Value must be a string, not %s.", jsonTypeName(v)))
		return "", false
	}
	if s == "" {
		verr.add(key, CodeEmpty, "This value is required.")
		return "", false
	}
	return s, true
}

func requireObject(verr ValidationError, key string, v any) (envelope.Object, bool) {
	if v == nil {
		verr.add(key, CodeEmpty, "This value is required.")
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		verr.add(key, CodeWrongType, fmt.Sprintf("Value must be an object, not %s.", jsonTypeName(v)))
		return nil, false
	}
	if len(m) == 0 {
		verr.add(key, CodeEmpty, "This value is required.")
		return nil, false
	}
	return envelope.Object(m), true
}

func isRequestKey(key string) bool {
	for _, k := range envelope.RequestKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func choiceList() string {
	kinds := envelope.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, fmt.Sprintf("%q", string(k)))
	}
	return strings.Join(names, ", ")
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return "a number"
	}
}
