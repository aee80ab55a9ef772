// Package ethsign signs orders with secp256k1 keys using go-ethereum.
//
// The digest is the EIP-191 text hash of keccak256 over the canonical JSON
// encoding of {type, order, instrument}. Map keys are sorted by encoding/json,
// so equal requests always produce the same digest.
package ethsign

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/danmuck/ordersigner/internal/protocol/envelope"
	"github.com/danmuck/ordersigner/internal/signer"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	MsgKeyLength   = "The private key must be exactly 32 bytes long."
	MsgKeyEncoding = "The private key must be hex-encoded."
	MsgKeyInvalid  = "The private key is not a valid secp256k1 key."
)

const valueError = "ValueError"

// Gateway implements signer.Gateway. It holds no state.
type Gateway struct{}

func New() Gateway {
	return Gateway{}
}

func (Gateway) Sign(ctx context.Context, req envelope.SignRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := ParseKey(req.Signer)
	if err != nil {
		return "", err
	}
	digest, err := Digest(req)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return "", errors.Wrap(err, "ethsign: sign digest")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// ParseKey decodes a hex private key with or without the 0x prefix.
func ParseKey(raw string) (*ecdsa.PrivateKey, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, signer.NewError(valueError, MsgKeyEncoding, nil)
	}
	if len(b) != 32 {
		return nil, signer.NewError(valueError, MsgKeyLength, map[string]any{"actual": raw})
	}
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, signer.NewError(valueError, MsgKeyInvalid, nil)
	}
	return key, nil
}

type digestInput struct {
	Type       envelope.Kind   `json:"type"`
	Order      envelope.Object `json:"order"`
	Instrument envelope.Object `json:"instrument"`
}

// Digest returns the 32-byte hash that Sign signs for req.
func Digest(req envelope.SignRequest) ([]byte, error) {
	payload, err := json.Marshal(digestInput{
		Type:       req.Kind,
		Order:      req.Order,
		Instrument: req.Instrument,
	})
	if err != nil {
		return nil, errors.Wrap(err, "ethsign: canonical encoding")
	}
	return accounts.TextHash(crypto.Keccak256(payload)), nil
}

// Recover returns the address that produced signature over req.
func Recover(req envelope.SignRequest, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "ethsign: decode signature")
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("ethsign: signature length %d", len(sig))
	}
	sig[crypto.RecoveryIDOffset] -= 27
	digest, err := Digest(req)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "ethsign: recover public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
