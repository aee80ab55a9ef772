package envelope

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSuccessWireShape(t *testing.T) {
	out, err := EncodeResponse(Success("0xb4dc0de"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(out) != `{"ok":true,"signature":"0xb4dc0de"}` {
		t.Fatalf("unexpected success payload: %s", out)
	}
}

func TestFailureWireShapeDefaultsContext(t *testing.T) {
	out, err := EncodeResponse(Fail("RuntimeError", "boom", nil))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"ok":false,"error":{"type":"RuntimeError","message":"boom","context":{}}}`
	if string(out) != want {
		t.Fatalf("unexpected failure payload:\n got=%s\nwant=%s", out, want)
	}

	out, err = json.Marshal(Response{})
	if err != nil {
		t.Fatalf("encode zero response: %v", err)
	}
	if string(out) != `{"ok":false,"error":{"type":"","message":"","context":{}}}` {
		t.Fatalf("unexpected zero response payload: %s", out)
	}
}

func TestEncodeRequestWireOrder(t *testing.T) {
	out, err := EncodeRequest(SignRequest{
		Kind:       KindFutures,
		Order:      Object{"side": "buy"},
		Instrument: Object{"symbol": "LEVETH"},
		Signer:     "0x1337",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"futures","order":{"side":"buy"},"instrument":{"symbol":"LEVETH"},"signer":"0x1337"}`
	if string(out) != want {
		t.Fatalf("unexpected request payload:\n got=%s\nwant=%s", out, want)
	}
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"ok":true,"signature":"0xabc"}`))
	if err != nil {
		t.Fatalf("decode success: %v", err)
	}
	if !resp.OK || resp.Signature != "0xabc" {
		t.Fatalf("unexpected success: %+v", resp)
	}

	resp, err = DecodeResponse([]byte(`{"ok":false,"error":{"type":"ValueError","message":"bad key","context":{"actual":"0x0"}}}`))
	if err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	if resp.OK || resp.Failure == nil {
		t.Fatalf("expected failure: %+v", resp)
	}
	if resp.Failure.Type != "ValueError" || resp.Failure.Message != "bad key" {
		t.Fatalf("unexpected failure: %+v", resp.Failure)
	}
	if resp.Failure.Context["actual"] != "0x0" {
		t.Fatalf("unexpected context: %+v", resp.Failure.Context)
	}

	resp, err = DecodeResponse([]byte(`{"ok":false,"error":{"type":"X","message":"y"}}`))
	if err != nil {
		t.Fatalf("decode failure without context: %v", err)
	}
	if resp.Failure.Context == nil || len(resp.Failure.Context) != 0 {
		t.Fatalf("expected empty context: %+v", resp.Failure.Context)
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `Hello, world!`,
		"no discriminant":   `{"message":"Hello, world!"}`,
		"null discriminant": `{"ok":null}`,
		"wrong ok type":     `{"ok":"yes","signature":"0x1"}`,
		"missing signature": `{"ok":true}`,
		"missing error":     `{"ok":false}`,
		"missing type":      `{"ok":false,"error":{"message":"m"}}`,
		"array":             `[true]`,
		"trailing":          `{"ok":true,"signature":"0x1"} {}`,
	}
	for name, payload := range cases {
		if _, err := DecodeResponse([]byte(payload)); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("%s: expected ErrMalformedResponse, got %v", name, err)
		}
	}
}

func TestUnmarshalKeepsNumbers(t *testing.T) {
	var obj Object
	if err := Unmarshal([]byte(`{"timestamp":1238217320021122,"price":23.44322}`), &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["timestamp"] != json.Number("1238217320021122") {
		t.Fatalf("unexpected timestamp: %#v", obj["timestamp"])
	}
	if obj["price"] != json.Number("23.44322") {
		t.Fatalf("unexpected price: %#v", obj["price"])
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds() {
		if !k.Valid() {
			t.Fatalf("expected %q valid", k)
		}
	}
	if Kind("options").Valid() {
		t.Fatalf("expected options invalid")
	}
}
