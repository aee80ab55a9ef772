package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrSocketInUse = errors.New("transport: unix socket already in use")

// Listen opens a listener for ep. For unix endpoints a stale socket file left by
// a crashed daemon is removed; a live one is reported as ErrSocketInUse.
func Listen(ctx context.Context, ep Endpoint, cfg Config) (net.Listener, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateServer(ep); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	switch ep.Network {
	case NetworkUnix:
		if err := removeStaleSocket(ep.Address); err != nil {
			return nil, err
		}
		ln, err := lc.Listen(ctx, "unix", ep.Address)
		if err != nil {
			return nil, err
		}
		if cfg.TLS.Enabled {
			return wrapTLS(ln, cfg)
		}
		return ln, nil
	case NetworkTCP, NetworkTLS:
		ln, err := lc.Listen(ctx, "tcp", ep.Address)
		if err != nil {
			return nil, err
		}
		if ep.Network == NetworkTLS || cfg.TLS.Enabled {
			return wrapTLS(ln, cfg)
		}
		return ln, nil
	default:
		return nil, fmt.Errorf("%w: network %q", ErrInvalidEndpoint, ep.Network)
	}
}

func wrapTLS(ln net.Listener, cfg Config) (net.Listener, error) {
	tlsCfg, err := cfg.serverTLSConfig()
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return tls.NewListener(ln, tlsCfg), nil
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("transport: %s exists and is not a socket", path)
	}
	conn, err := net.DialTimeout("unix", path, 250*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrSocketInUse, path)
	}
	log.Warn().Str("path", path).Msg("transport.Listen removing stale socket")
	return os.Remove(path)
}
