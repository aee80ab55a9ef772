package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// Dial connects to ep, retrying connection establishment with backoff up to
// cfg.MaxConnectAttempts times (zero or less retries until ctx ends). Only the
// connect is retried; nothing has been sent yet.
func Dial(ctx context.Context, ep Endpoint, cfg Config) (net.Conn, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClient(ep); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		conn, err := dialOnce(ctx, ep, cfg)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("transport: dial %s: %w", ep, err)
		}
		delay := NextBackoffDelay(cfg.Backoff, attempt, rng)
		log.Debug().Str("endpoint", ep.String()).Int("attempt", attempt).Dur("delay", delay).Err(err).
			Msg("transport.Dial retrying")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func dialOnce(ctx context.Context, ep Endpoint, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	network := "tcp"
	if ep.Network == NetworkUnix {
		network = "unix"
	}
	rawConn, err := dialer.DialContext(ctx, network, ep.Address)
	if err != nil {
		return nil, err
	}
	if ep.Network != NetworkTLS && !cfg.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := cfg.clientTLSConfig(ep)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}
