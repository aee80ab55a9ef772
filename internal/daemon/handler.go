package daemon

import (
	"context"
	"strings"
	"time"

	"github.com/danmuck/ordersigner/internal/observability"
	"github.com/danmuck/ordersigner/internal/protocol/envelope"
	"github.com/danmuck/ordersigner/internal/protocol/schema"
	"github.com/danmuck/ordersigner/internal/signer"
	"github.com/rs/zerolog/log"
)

// Response failure constants for rejected input.
const (
	ValidationErrorType  = "ValidationError"
	MsgValidationFailed  = "Invalid input; see context for more info."
	EncodingErrorType    = "EncodingError"
	MsgEncodingFailed    = "Signer failure could not be encoded."
	ResponseTooLargeType = "ResponseTooLarge"
	MsgResponseTooLarge  = "Response exceeded the frame size limit."
)

// maxFallbackMessage caps the message kept when an oversized failure is
// replaced.
const maxFallbackMessage = 512

// Handler turns one request frame into one response. Safe for concurrent use.
type Handler struct {
	gateway signer.Gateway
}

func NewHandler(gateway signer.Gateway) *Handler {
	return &Handler{gateway: gateway}
}

// Handle never fails: every outcome, including a panicking gateway, becomes a
// response.
func (h *Handler) Handle(ctx context.Context, raw []byte) envelope.Response {
	req, verr := schema.Validate(raw)
	if verr != nil {
		observability.RecordRequest("", observability.OutcomeValidationError)
		return envelope.Fail(ValidationErrorType, MsgValidationFailed, verr.Context())
	}

	kind := string(req.Kind)
	start := time.Now()
	sig, err := signer.SafeSign(ctx, h.gateway, req)
	observability.RecordSign(kind, time.Since(start))
	if err != nil {
		f := signer.Describe(err)
		log.Warn().Str("kind", kind).Str("type", f.Type).Err(err).Msg("daemon.Handle signing failed")
		observability.RecordRequest(kind, observability.OutcomeSigningError)
		return envelope.Fail(f.Type, f.Message, f.Context)
	}
	observability.RecordRequest(kind, observability.OutcomeSigned)
	return envelope.Success(sig)
}

// encode renders resp, falling back to a context-free failure when a signer
// supplied context that cannot be encoded as JSON.
func encode(resp envelope.Response) []byte {
	payload, err := envelope.EncodeResponse(resp)
	if err == nil {
		return payload
	}
	log.Error().Err(err).Msg("daemon.encode response")
	fallback := envelope.Fail(EncodingErrorType, MsgEncodingFailed, nil)
	if resp.Failure != nil {
		fallback.Failure.Message = resp.Failure.Message
		fallback.Failure.Context = map[string]any{"type": resp.Failure.Type}
	}
	payload, _ = envelope.EncodeResponse(fallback)
	return payload
}

// encodeBounded renders resp and replaces it with a small failure when the
// encoded form exceeds maxBytes, so the peer's reader never sees an oversized
// frame. Failures keep their type and a truncated message.
func encodeBounded(resp envelope.Response, maxBytes int) []byte {
	payload := encode(resp)
	if maxBytes <= 0 || len(payload) <= maxBytes {
		return payload
	}
	log.Warn().Int("bytes", len(payload)).Int("limit", maxBytes).Msg("daemon.encode response too large")

	detail := map[string]any{"truncated": true, "bytes": len(payload)}
	fallback := envelope.Fail(ResponseTooLargeType, MsgResponseTooLarge, detail)
	if resp.Failure != nil {
		msg := resp.Failure.Message
		if len(msg) > maxFallbackMessage {
			msg = strings.ToValidUTF8(msg[:maxFallbackMessage], "")
		}
		fallback = envelope.Fail(resp.Failure.Type, msg, detail)
	}
	return encode(fallback)
}
