package daemon

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/danmuck/ordersigner/internal/protocol/envelope"
	"github.com/danmuck/ordersigner/internal/signer"
	"github.com/danmuck/ordersigner/internal/testutil/testlog"
)

const validSpot = `{"type":"spot","order":{"side":"buy","quantity":"1"},"instrument":{"symbol":"LEVETH"},"signer":"0x1337"}`

func handle(t *testing.T, g signer.Gateway, raw string) string {
	t.Helper()
	return string(encode(NewHandler(g).Handle(context.Background(), []byte(raw))))
}

func TestHandleSuccess(t *testing.T) {
	testlog.Start(t)
	mock := signer.NewMock()
	mock.Set(envelope.KindSpot, "0xb4dc0de")

	got := handle(t, mock, validSpot)
	if got != `{"ok":true,"signature":"0xb4dc0de"}` {
		t.Fatalf("unexpected response: %s", got)
	}
	reqs := mock.Requests()
	if len(reqs) != 1 || reqs[0].Signer != "0x1337" || reqs[0].Instrument["symbol"] != "LEVETH" {
		t.Fatalf("gateway saw unexpected requests: %+v", reqs)
	}
}

func TestHandleValidationFailureNullInstrument(t *testing.T) {
	testlog.Start(t)
	mock := signer.NewMock()
	mock.Set(envelope.KindSpot, "0xb4dc0de")

	raw := `{"type":"spot","order":{"side":"buy"},"instrument":null,"signer":"0x1337"}`
	var resp struct {
		OK    bool `json:"ok"`
		Error struct {
			Type    string                         `json:"type"`
			Message string                         `json:"message"`
			Context map[string][]map[string]string `json:"context"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(handle(t, mock, raw)), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OK || resp.Error.Type != ValidationErrorType || resp.Error.Message != MsgValidationFailed {
		t.Fatalf("unexpected response: %+v", resp)
	}
	entries := resp.Error.Context["instrument"]
	if len(entries) != 1 || entries[0]["code"] != "empty" {
		t.Fatalf("unexpected context: %+v", resp.Error.Context)
	}
	if len(mock.Requests()) != 0 {
		t.Fatalf("gateway must not be called for invalid input")
	}
}

func TestHandleSigningFailureCarriesTypeAndContext(t *testing.T) {
	testlog.Start(t)
	mock := signer.NewMock()
	mock.Set(envelope.KindSpot, signer.NewError("ValueError", "The private key must be exactly 32 bytes long.", map[string]any{"actual": "0x0"}))

	got := handle(t, mock, validSpot)
	want := `{"ok":false,"error":{"type":"ValueError","message":"The private key must be exactly 32 bytes long.","context":{"actual":"0x0"}}}`
	if got != want {
		t.Fatalf("unexpected response:\n got=%s\nwant=%s", got, want)
	}
}

func TestHandlePlainErrorDefaults(t *testing.T) {
	testlog.Start(t)
	g := signer.GatewayFunc(func(context.Context, envelope.SignRequest) (string, error) {
		return "", context.Canceled
	})
	resp := NewHandler(g).Handle(context.Background(), []byte(validSpot))
	if resp.OK || resp.Failure == nil || resp.Failure.Type != "Cancelled" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Failure.Context == nil || len(resp.Failure.Context) != 0 {
		t.Fatalf("expected empty context, got %+v", resp.Failure.Context)
	}
}

func TestHandlePanicBecomesInternalError(t *testing.T) {
	testlog.Start(t)
	g := signer.GatewayFunc(func(context.Context, envelope.SignRequest) (string, error) {
		panic("boom")
	})
	resp := NewHandler(g).Handle(context.Background(), []byte(validSpot))
	if resp.OK || resp.Failure == nil || resp.Failure.Type != "InternalError" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestEncodeFallsBackOnUnencodableContext(t *testing.T) {
	testlog.Start(t)
	resp := envelope.Fail("ValueError", "bad", map[string]any{"ch": make(chan int)})
	var decoded struct {
		OK    bool `json:"ok"`
		Error struct {
			Type    string         `json:"type"`
			Message string         `json:"message"`
			Context map[string]any `json:"context"`
		} `json:"error"`
	}
	if err := json.Unmarshal(encode(resp), &decoded); err != nil {
		t.Fatalf("fallback is not JSON: %v", err)
	}
	if decoded.Error.Type != EncodingErrorType || decoded.Error.Message != "bad" || decoded.Error.Context["type"] != "ValueError" {
		t.Fatalf("unexpected fallback: %+v", decoded)
	}
}

func TestEncodeBoundedReplacesOversizedResponses(t *testing.T) {
	testlog.Start(t)
	const limit = 1024

	small := envelope.Success("0xb4dc0de")
	if got := string(encodeBounded(small, limit)); got != `{"ok":true,"signature":"0xb4dc0de"}` {
		t.Fatalf("small response altered: %s", got)
	}

	big := envelope.Fail(ValidationErrorType, MsgValidationFailed, map[string]any{"blob": strings.Repeat("x", 4*limit)})
	var decoded struct {
		OK    bool `json:"ok"`
		Error struct {
			Type    string         `json:"type"`
			Message string         `json:"message"`
			Context map[string]any `json:"context"`
		} `json:"error"`
	}
	out := encodeBounded(big, limit)
	if len(out) > limit {
		t.Fatalf("bounded response still too large: %d", len(out))
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode bounded response: %v", err)
	}
	if decoded.OK || decoded.Error.Type != ValidationErrorType || decoded.Error.Message != MsgValidationFailed {
		t.Fatalf("unexpected bounded failure: %+v", decoded)
	}
	if decoded.Error.Context["truncated"] != true {
		t.Fatalf("expected truncated marker: %+v", decoded.Error.Context)
	}

	hugeSig := envelope.Success(strings.Repeat("f", 4*limit))
	decoded.Error.Type = ""
	if err := json.Unmarshal(encodeBounded(hugeSig, limit), &decoded); err != nil {
		t.Fatalf("decode bounded success: %v", err)
	}
	if decoded.OK || decoded.Error.Type != ResponseTooLargeType {
		t.Fatalf("expected ResponseTooLarge, got %+v", decoded)
	}

	longMsg := envelope.Fail("SigningError", strings.Repeat("m", 4*limit), nil)
	decoded.Error.Message = ""
	if err := json.Unmarshal(encodeBounded(longMsg, limit), &decoded); err != nil {
		t.Fatalf("decode bounded message: %v", err)
	}
	if decoded.Error.Type != "SigningError" || len(decoded.Error.Message) != maxFallbackMessage {
		t.Fatalf("unexpected truncated message: type=%q len=%d", decoded.Error.Type, len(decoded.Error.Message))
	}
}
