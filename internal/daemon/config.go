package daemon

import (
	"time"

	"github.com/danmuck/ordersigner/internal/protocol/frame"
	"github.com/danmuck/ordersigner/internal/transport"
)

// ServiceConfig configures the daemon runtime.
type ServiceConfig struct {
	Interface       string
	MetricsAddr     string
	Limits          frame.Limits
	RateLimit       float64
	RateBurst       int
	ReadIdleTimeout time.Duration
	ShutdownGrace   time.Duration
	Transport       transport.Config
}

// Daemon defaults for standalone runtime configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Interface:       transport.DefaultEndpoint,
		MetricsAddr:     "",
		Limits:          frame.DefaultLimits(),
		RateLimit:       0,
		RateBurst:       0,
		ReadIdleTimeout: 0,
		ShutdownGrace:   10 * time.Second,
		Transport:       transport.DefaultConfig(),
	}
}
