package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Request outcomes recorded by the daemon.
const (
	OutcomeSigned          = "signed"
	OutcomeValidationError = "validation_error"
	OutcomeSigningError    = "signing_error"
)

// Client response results.
const (
	ResultResolved      = "resolved"
	ResultRejected      = "rejected"
	ResultUnprocessable = "unprocessable"
	ResultUnsolicited   = "unsolicited"
	ResultConnClosed    = "connection_closed"
)

var (
	registerOnce sync.Once

	daemonRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordersigner",
			Subsystem: "daemon",
			Name:      "requests_total",
			Help:      "Request frames answered, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	daemonSignDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ordersigner",
			Subsystem: "daemon",
			Name:      "sign_duration_seconds",
			Help:      "Signer gateway call duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"kind"},
	)
	daemonActiveConns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ordersigner",
			Subsystem: "daemon",
			Name:      "active_connections",
			Help:      "Client connections currently open.",
		},
	)
	daemonConnsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordersigner",
			Subsystem: "daemon",
			Name:      "connections_closed_total",
			Help:      "Client connections closed, by reason.",
		},
		[]string{"reason"},
	)
	clientResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ordersigner",
			Subsystem: "client",
			Name:      "responses_total",
			Help:      "Pending requests settled by the client, by result.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(daemonRequests, daemonSignDuration, daemonActiveConns, daemonConnsClosed, clientResponses)
	})
}

func RecordRequest(kind, outcome string) {
	RegisterMetrics()
	if kind == "" {
		kind = "invalid"
	}
	daemonRequests.WithLabelValues(kind, outcome).Inc()
}

func RecordSign(kind string, duration time.Duration) {
	RegisterMetrics()
	daemonSignDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func ConnectionOpened() {
	RegisterMetrics()
	daemonActiveConns.Inc()
}

func ConnectionClosed(reason string) {
	RegisterMetrics()
	daemonActiveConns.Dec()
	daemonConnsClosed.WithLabelValues(reason).Inc()
}

func RecordClientResponse(result string) {
	RegisterMetrics()
	clientResponses.WithLabelValues(result).Inc()
}

// ServeMetrics exposes /metrics on addr until ctx ends.
func ServeMetrics(ctx context.Context, addr string) error {
	RegisterMetrics()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return serveMetrics(ctx, ln)
}

func serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("observability.metrics listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
