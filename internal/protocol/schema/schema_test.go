package schema

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/danmuck/ordersigner/internal/protocol/envelope"
	"github.com/danmuck/ordersigner/internal/testutil/testlog"
)

func validRequest() map[string]any {
	return map[string]any{
		"type":       "spot",
		"instrument": map[string]any{"symbol": "LEVETH"},
		"order":      map[string]any{"side": "buy"},
		"signer":     "0x1337",
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return out
}

func TestValidateHappyPath(t *testing.T) {
	testlog.Start(t)
	for _, kind := range envelope.Kinds() {
		in := validRequest()
		in["type"] = string(kind)
		req, verr := Validate(mustJSON(t, in))
		if verr != nil {
			t.Fatalf("kind=%s unexpected errors: %v", kind, verr)
		}
		if req.Kind != kind {
			t.Fatalf("unexpected kind: %q", req.Kind)
		}
		if req.Signer != "0x1337" {
			t.Fatalf("unexpected signer: %q", req.Signer)
		}
		if req.Instrument["symbol"] != "LEVETH" || req.Order["side"] != "buy" {
			t.Fatalf("unexpected payload: %+v", req)
		}
	}
}

func TestValidateRoundTrip(t *testing.T) {
	testlog.Start(t)
	want := envelope.SignRequest{
		Kind: envelope.KindFutures,
		Order: envelope.Object{
			"side":      "buy",
			"quantity":  json.Number("12.3343"),
			"timestamp": json.Number("12382173200872"),
			"flags":     []any{"post_only", true},
		},
		Instrument: envelope.Object{
			"symbol": "LEVETH",
			"quote":  map[string]any{"decimals": json.Number("18")},
		},
		Signer: "0xb98ea45b6515cbd6a5c39108612b2cd5ae184d5eb0d72b21389a1fe6db01fe0d",
	}
	raw, err := envelope.EncodeRequest(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, verr := Validate(raw)
	if verr != nil {
		t.Fatalf("unexpected errors: %v", verr)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got=%#v\nwant=%#v", got, want)
	}
}

func TestValidateFrameLevelFailures(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		raw  []byte
		code string
	}{
		{"empty", []byte(""), CodeEmpty},
		{"blank", []byte("   "), CodeEmpty},
		{"bad utf8", []byte{0xff, 0xfe, '{', '}'}, CodeWrongEncoding},
		{"not json", []byte("Hello, world!"), CodeInvalidJSON},
		{"truncated json", []byte(`{"type":"spot"`), CodeInvalidJSON},
		{"array", []byte(`[1,2,3]`), CodeWrongType},
		{"scalar", []byte(`42`), CodeWrongType},
		{"null", []byte(`null`), CodeWrongType},
	}
	for _, tc := range cases {
		_, verr := Validate(tc.raw)
		if verr == nil {
			t.Fatalf("%s: expected failure", tc.name)
		}
		if len(verr) != 1 {
			t.Fatalf("%s: expected only root errors, got %v", tc.name, verr)
		}
		if got := verr.Codes(RootKey); !reflect.DeepEqual(got, []string{tc.code}) {
			t.Fatalf("%s: codes=%v want=%s", tc.name, got, tc.code)
		}
	}
}

func TestValidateMissingKeys(t *testing.T) {
	testlog.Start(t)
	for _, key := range envelope.RequestKeys() {
		in := validRequest()
		delete(in, key)
		_, verr := Validate(mustJSON(t, in))
		if verr == nil {
			t.Fatalf("missing %s: expected failure", key)
		}
		if len(verr) != 1 {
			t.Fatalf("missing %s: unexpected extra errors: %v", key, verr)
		}
		if got := verr.Codes(key); !reflect.DeepEqual(got, []string{CodeMissingKey}) {
			t.Fatalf("missing %s: codes=%v", key, got)
		}
	}

	_, verr := Validate([]byte(`{}`))
	if len(verr) != 4 {
		t.Fatalf("expected all four keys reported, got %v", verr)
	}
}

func TestValidateExtraAndMissingTogether(t *testing.T) {
	testlog.Start(t)
	in := validRequest()
	delete(in, "signer")
	in["nonce"] = 7
	in["comment"] = "x"
	_, verr := Validate(mustJSON(t, in))
	if verr == nil {
		t.Fatalf("expected failure")
	}
	if got := verr.Codes("signer"); !reflect.DeepEqual(got, []string{CodeMissingKey}) {
		t.Fatalf("signer codes=%v", got)
	}
	if got := verr.Codes("nonce"); !reflect.DeepEqual(got, []string{CodeExtraKey}) {
		t.Fatalf("nonce codes=%v", got)
	}
	if got := verr.Codes("comment"); !reflect.DeepEqual(got, []string{CodeExtraKey}) {
		t.Fatalf("comment codes=%v", got)
	}
	if len(verr) != 3 {
		t.Fatalf("unexpected keys: %v", verr)
	}
}

func TestValidateFieldChecks(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		key   string
		value any
		code  string
	}{
		{"instrument", nil, CodeEmpty},
		{"instrument", map[string]any{}, CodeEmpty},
		{"instrument", []any{"LEVETH"}, CodeWrongType},
		{"instrument", "LEVETH", CodeWrongType},
		{"order", nil, CodeEmpty},
		{"order", 12, CodeWrongType},
		{"signer", "", CodeEmpty},
		{"signer", nil, CodeEmpty},
		{"signer", 1337, CodeWrongType},
		{"type", "options", CodeChoiceInvalid},
		{"type", "", CodeEmpty},
		{"type", true, CodeWrongType},
	}
	for _, tc := range cases {
		in := validRequest()
		in[tc.key] = tc.value
		_, verr := Validate(mustJSON(t, in))
		if verr == nil {
			t.Fatalf("%s=%v: expected failure", tc.key, tc.value)
		}
		if got := verr.Codes(tc.key); !reflect.DeepEqual(got, []string{tc.code}) {
			t.Fatalf("%s=%v: codes=%v want=%s", tc.key, tc.value, got, tc.code)
		}
		if len(verr) != 1 {
			t.Fatalf("%s=%v: unexpected extra errors: %v", tc.key, tc.value, verr)
		}
	}
}

func TestValidationErrorContextShape(t *testing.T) {
	testlog.Start(t)
	in := validRequest()
	in["instrument"] = nil
	_, verr := Validate(mustJSON(t, in))
	out := mustJSON(t, verr.Context())

	var decoded map[string][]map[string]string
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode context: %v", err)
	}
	entries := decoded["instrument"]
	if len(entries) != 1 || entries[0]["code"] != "empty" || entries[0]["message"] == "" {
		t.Fatalf("unexpected context: %s", out)
	}
}
