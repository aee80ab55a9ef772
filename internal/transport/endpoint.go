package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Network names accepted in endpoint strings.
const (
	NetworkUnix = "unix"
	NetworkTCP  = "tcp"
	NetworkTLS  = "tls"
)

// DefaultEndpoint is used when neither config nor flags name an interface.
const DefaultEndpoint = "unix:/tmp/ordersigner-daemon.sock"

var ErrInvalidEndpoint = errors.New("transport: invalid endpoint")

// Endpoint is one parsed listen or dial address.
type Endpoint struct {
	Network string
	Address string
}

func (e Endpoint) String() string {
	return e.Network + ":" + e.Address
}

// ParseEndpoint accepts "unix:<path>", "tcp:<host>:<port>", "tls:<host>:<port>",
// a bare "host:port" (tcp) or a bare filesystem path (unix).
func ParseEndpoint(raw string) (Endpoint, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}

	if network, addr, ok := strings.Cut(s, ":"); ok {
		switch strings.ToLower(network) {
		case NetworkUnix:
			if strings.TrimSpace(addr) == "" {
				return Endpoint{}, fmt.Errorf("%w: unix endpoint needs a path", ErrInvalidEndpoint)
			}
			return Endpoint{Network: NetworkUnix, Address: addr}, nil
		case NetworkTCP, NetworkTLS:
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, raw, err)
			}
			return Endpoint{Network: strings.ToLower(network), Address: addr}, nil
		}
	}

	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, ".") {
		return Endpoint{Network: NetworkUnix, Address: s}, nil
	}
	if _, _, err := net.SplitHostPort(s); err == nil {
		return Endpoint{Network: NetworkTCP, Address: s}, nil
	}
	return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, raw)
}
