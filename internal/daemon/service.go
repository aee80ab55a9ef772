package daemon

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/ordersigner/internal/observability"
	"github.com/danmuck/ordersigner/internal/signer"
	"github.com/danmuck/ordersigner/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNilGateway       = errors.New("daemon: signer gateway required")
	ErrInvalidRateLimit = errors.New("daemon: invalid rate limit or burst")
	ErrAlreadyServing   = errors.New("daemon: already serving")
)

// Service runs the signing daemon lifecycle.
type Service struct {
	cfg     ServiceConfig
	handler *Handler

	mu      sync.Mutex
	serving bool
	conns   map[*trackedConn]struct{}
	wg      sync.WaitGroup
}

func NewService(cfg ServiceConfig, gateway signer.Gateway) (*Service, error) {
	if gateway == nil {
		return nil, ErrNilGateway
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return nil, ErrInvalidRateLimit
	}
	cfg.Limits = cfg.Limits.WithDefaults()
	cfg.Transport = cfg.Transport.WithDefaults()
	if strings.TrimSpace(cfg.Interface) == "" {
		cfg.Interface = transport.DefaultEndpoint
	}
	return &Service{
		cfg:     cfg,
		handler: NewHandler(gateway),
		conns:   make(map[*trackedConn]struct{}),
	}, nil
}

// Run blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.ListenAndServe(ctx)
}

// ListenAndServe opens the configured interface (and metrics listener, if any)
// and serves until ctx ends or one of them fails.
func (s *Service) ListenAndServe(ctx context.Context) error {
	ep, err := transport.ParseEndpoint(s.cfg.Interface)
	if err != nil {
		return err
	}
	ln, err := transport.Listen(ctx, ep, s.cfg.Transport)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(gctx, ln)
	})
	if addr := strings.TrimSpace(s.cfg.MetricsAddr); addr != "" {
		g.Go(func() error {
			return observability.ServeMetrics(gctx, addr)
		})
	}
	return g.Wait()
}

// Serve accepts connections on ln until ctx ends, then drains active
// connections. ln is closed on return.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrAlreadyServing
	}
	s.serving = true
	s.mu.Unlock()

	defer ln.Close()
	log.Info().Str("addr", ln.Addr().String()).Str("network", ln.Addr().Network()).Msg("daemon.Serve listening")

	stopAccept := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stopAccept()

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				acceptErr = err
			}
			break
		}
		tc := s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(tc)
			s.handleConn(ctx, tc)
		}()
	}

	s.drain()
	log.Info().Msg("daemon.Serve stopped")
	return acceptErr
}

// ActiveConnections reports the number of open client connections.
func (s *Service) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Service) track(conn net.Conn) *trackedConn {
	tc := newTrackedConn(conn)
	s.mu.Lock()
	s.conns[tc] = struct{}{}
	s.mu.Unlock()
	return tc
}

func (s *Service) untrack(tc *trackedConn) {
	s.mu.Lock()
	delete(s.conns, tc)
	s.mu.Unlock()
}

// drain closes idle connections at once and gives busy ones ShutdownGrace to
// deliver their in-flight response before closing them too.
func (s *Service) drain() {
	s.mu.Lock()
	for tc := range s.conns {
		tc.shutdown()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(s.cfg.ShutdownGrace):
	}

	s.mu.Lock()
	n := len(s.conns)
	for tc := range s.conns {
		_ = tc.conn.Close()
	}
	s.mu.Unlock()
	log.Warn().Int("connections", n).Msg("daemon.drain grace expired, closing busy connections")
	<-done
}
