package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/danmuck/ordersigner/internal/observability"
	"github.com/danmuck/ordersigner/internal/protocol/envelope"
	"github.com/danmuck/ordersigner/internal/protocol/frame"
	"github.com/danmuck/ordersigner/internal/transport"
	"github.com/rs/zerolog/log"
)

// Config controls how a client reaches the daemon.
type Config struct {
	Transport transport.Config
	Limits    frame.Limits
}

func DefaultConfig() Config {
	return Config{
		Transport: transport.DefaultConfig(),
		Limits:    frame.DefaultLimits(),
	}
}

// Client pipelines sign requests over one connection. Responses are matched
// to requests by arrival order. Safe for concurrent use.
type Client struct {
	conn   net.Conn
	writer *frame.Writer
	limits frame.Limits

	// sendMu keeps queue order identical to wire order.
	sendMu sync.Mutex

	mu       sync.Mutex
	pending  queue
	closed   bool
	closeErr error
	cause    error

	done       chan struct{}
	readerDone chan struct{}
}

// Dial connects to endpoint, or to transport.DefaultEndpoint when endpoint is
// empty.
func Dial(ctx context.Context, endpoint string, cfg Config) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = transport.DefaultEndpoint
	}
	ep, err := transport.ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	conn, err := transport.Dial(ctx, ep, cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", ep, err)
	}
	log.Debug().Str("endpoint", ep.String()).Msg("client.Dial connected")
	return New(conn, cfg.Limits), nil
}

// New takes ownership of conn and starts the response reader.
func New(conn net.Conn, limits frame.Limits) *Client {
	limits = limits.WithDefaults()
	c := &Client{
		conn:       conn,
		limits:     limits,
		writer:     frame.NewWriter(conn, limits),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go c.readLoop(frame.NewReader(conn, limits))
	return c
}

// Send writes req and returns its result slot. Failures to encode or write
// are delivered through the returned Pending. A request larger than the frame
// limit fails on its own with an error wrapping frame.ErrFrameTooLarge and is
// never written.
func (c *Client) Send(req envelope.SignRequest) *Pending {
	p := newPending()
	payload, err := envelope.EncodeRequest(req)
	if err != nil {
		p.settle("", fmt.Errorf("client: encode request: %w", err))
		return p
	}
	if len(payload) > c.limits.MaxFrameBytes {
		p.settle("", fmt.Errorf("client: request of %d bytes: %w", len(payload), frame.ErrFrameTooLarge))
		return p
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.closed {
		closeErr := c.closeErr
		c.mu.Unlock()
		p.settle("", closeErr)
		observability.RecordClientResponse(observability.ResultConnClosed)
		return p
	}
	c.pending.push(p)
	c.mu.Unlock()

	if err := c.writer.WriteFrame(payload); err != nil {
		c.abort(fmt.Errorf("write: %w", err))
	}
	return p
}

// Sign sends req and waits for its response.
func (c *Client) Sign(ctx context.Context, req envelope.SignRequest) (string, error) {
	return c.Send(req).Wait(ctx)
}

func (c *Client) SignSpot(ctx context.Context, order, instrument envelope.Object, signerKey string) (string, error) {
	return c.Sign(ctx, envelope.SignRequest{Kind: envelope.KindSpot, Order: order, Instrument: instrument, Signer: signerKey})
}

func (c *Client) SignFutures(ctx context.Context, order, instrument envelope.Object, signerKey string) (string, error) {
	return c.Sign(ctx, envelope.SignRequest{Kind: envelope.KindFutures, Order: order, Instrument: instrument, Signer: signerKey})
}

// Pending reports how many requests await a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len()
}

// Done is closed when the connection has been torn down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns what ended the connection: nil while it is open or after a
// local Close, the transport error, or an error wrapping
// ErrUnsolicitedResponse.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Close tears down the connection. Pending requests are rejected with
// ErrConnectionClosed.
func (c *Client) Close() error {
	c.abort(nil)
	<-c.readerDone
	return nil
}

func (c *Client) readLoop(r *frame.Reader) {
	defer close(c.readerDone)
	for {
		line, err := r.Next()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
			c.abort(err)
			return
		}
		if !c.dispatch(line) {
			return
		}
	}
}

// dispatch settles the oldest pending request with line. It reports false
// when the connection had to be aborted.
func (c *Client) dispatch(line []byte) bool {
	c.mu.Lock()
	p, ok := c.pending.pop()
	c.mu.Unlock()
	if !ok {
		observability.RecordClientResponse(observability.ResultUnsolicited)
		c.abort(fmt.Errorf("%w: %q", ErrUnsolicitedResponse, line))
		return false
	}

	resp, err := envelope.DecodeResponse(line)
	switch {
	case err != nil:
		log.Warn().Err(err).Int("bytes", len(line)).Msg("client.dispatch unprocessable response")
		p.settle("", &UnprocessableResponse{Line: line, Cause: err})
		observability.RecordClientResponse(observability.ResultUnprocessable)
	case resp.OK:
		p.settle(resp.Signature, nil)
		observability.RecordClientResponse(observability.ResultResolved)
	default:
		p.settle("", &ErrorResponse{
			Type:    resp.Failure.Type,
			Message: resp.Failure.Message,
			Context: resp.Failure.Context,
		})
		observability.RecordClientResponse(observability.ResultRejected)
	}
	return true
}

// abort closes the connection once and rejects everything still pending.
func (c *Client) abort(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cause = cause
	c.closeErr = connClosed(cause)
	stranded := c.pending.drain()
	closeErr := c.closeErr
	c.mu.Unlock()

	_ = c.conn.Close()
	if cause != nil {
		log.Warn().Err(cause).Int("pending", len(stranded)).Msg("client.abort connection lost")
	}
	for _, p := range stranded {
		if p.settle("", closeErr) {
			observability.RecordClientResponse(observability.ResultConnClosed)
		}
	}
	close(c.done)
}
