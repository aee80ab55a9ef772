package daemon

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/danmuck/ordersigner/internal/observability"
	"github.com/danmuck/ordersigner/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type connState int

const (
	stateAwaitingFrame connState = iota
	stateProcessing
)

func (s connState) String() string {
	if s == stateProcessing {
		return "processing"
	}
	return "awaiting_frame"
}

// Connection close reasons.
const (
	closeEOF       = "eof"
	closeFraming   = "framing"
	closeTransport = "transport"
	closeShutdown  = "shutdown"
)

// trackedConn pairs a connection with its handler state so shutdown can close
// idle connections without cutting off a response mid-write.
type trackedConn struct {
	conn    net.Conn
	id      string
	mu      sync.Mutex
	state   connState
	closing bool
}

func newTrackedConn(conn net.Conn) *trackedConn {
	return &trackedConn{conn: conn, id: uuid.NewString()}
}

// begin moves AWAITING_FRAME -> PROCESSING. It reports false once shutdown
// has started.
func (c *trackedConn) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return false
	}
	c.state = stateProcessing
	return true
}

// finish moves PROCESSING -> AWAITING_FRAME.
func (c *trackedConn) finish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateAwaitingFrame
	return !c.closing
}

func (c *trackedConn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closing = true
	if c.state == stateAwaitingFrame {
		_ = c.conn.Close()
	}
}

func (c *trackedConn) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// handleConn reads one frame at a time and writes its response before reading
// the next, so responses leave in request order.
func (s *Service) handleConn(ctx context.Context, tc *trackedConn) {
	conn := tc.conn
	defer conn.Close()

	remote := remoteAddr(conn)
	logger := log.With().Str("conn_id", tc.id).Str("remote", remote).Logger()
	observability.ConnectionOpened()
	active := s.ActiveConnections()
	logger.Info().Int("active_clients", active).Msg("daemon.conn accepted")

	reason := closeEOF
	defer func() {
		observability.ConnectionClosed(reason)
		logger.Info().Str("reason", reason).Msg("daemon.conn closed")
	}()

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		burst := s.cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)
	}

	reader := frame.NewReader(conn, s.cfg.Limits)
	// Responses are bounded by encodeBounded; the writer only frames them.
	writer := frame.NewWriter(conn, frame.Limits{MaxFrameBytes: math.MaxInt})
	served := 0
	for {
		if s.cfg.ReadIdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadIdleTimeout))
		}
		line, err := reader.Next()
		if err != nil {
			reason = classifyReadErr(tc, err)
			if reason == closeFraming {
				logger.Warn().Err(err).Int("served", served).Msg("daemon.conn framing defect")
			} else if reason == closeTransport {
				logger.Warn().Err(err).Msg("daemon.conn read")
			}
			return
		}
		if !tc.begin() {
			reason = closeShutdown
			return
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				reason = closeShutdown
				return
			}
		}
		resp := s.handler.Handle(ctx, line)
		if err := writer.WriteFrame(encodeBounded(resp, s.cfg.Limits.MaxFrameBytes)); err != nil {
			reason = closeTransport
			logger.Warn().Err(err).Msg("daemon.conn write")
			return
		}
		served++
		logger.Debug().Bool("ok", resp.OK).Int("served", served).Msg("daemon.conn responded")

		if !tc.finish() {
			reason = closeShutdown
			return
		}
	}
}

func classifyReadErr(tc *trackedConn, err error) string {
	switch {
	case tc.isClosing():
		return closeShutdown
	case errors.Is(err, io.EOF):
		return closeEOF
	case errors.Is(err, frame.ErrFrameTooLarge), errors.Is(err, frame.ErrTruncatedFrame):
		return closeFraming
	case errors.Is(err, net.ErrClosed):
		return closeShutdown
	default:
		return closeTransport
	}
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "local"
}
