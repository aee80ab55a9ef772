package signer

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/ordersigner/internal/protocol/envelope"
)

// Mock returns a configured result per request kind. Set a kind's result to a
// string to return it as the signature, or to an error to fail with it.
type Mock struct {
	mu       sync.Mutex
	results  map[envelope.Kind]any
	requests []envelope.SignRequest
}

func NewMock() *Mock {
	return &Mock{results: make(map[envelope.Kind]any)}
}

// Set configures the result for kind: a signature string or an error.
func (m *Mock) Set(kind envelope.Kind, result any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[kind] = result
}

func (m *Mock) Sign(_ context.Context, req envelope.SignRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	result := m.results[req.Kind]
	m.mu.Unlock()

	switch v := result.(type) {
	case string:
		return v, nil
	case error:
		return "", v
	case nil:
		return "", fmt.Errorf("signer: mock has no result for kind %q", req.Kind)
	default:
		panic(fmt.Sprintf("signer: mock result for %q has type %T", req.Kind, v))
	}
}

// Requests returns every request seen so far, in call order.
func (m *Mock) Requests() []envelope.SignRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]envelope.SignRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Static signs every request with the same signature. Used for smoke tests of
// the daemon without key material.
type Static struct {
	Signature string
}

func (s Static) Sign(context.Context, envelope.SignRequest) (string, error) {
	return s.Signature, nil
}
