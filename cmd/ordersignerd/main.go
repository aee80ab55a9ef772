// ordersignerd serves signing requests over a local socket.
//
//	ordersignerd --config cmd/ordersignerd/ex.config.toml
//	ordersignerd --interface tcp:127.0.0.1:7300 --signer static --static-signature 0xb4dc0de
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/ordersigner/internal/daemon"
	"github.com/danmuck/ordersigner/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "ordersignerd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logging.ConfigureRuntime()

	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	gateway, err := buildGateway(cfg)
	if err != nil {
		return err
	}
	svc, err := daemon.NewService(cfg.Service, gateway)
	if err != nil {
		return err
	}
	log.Info().
		Str("interface", cfg.Service.Interface).
		Str("signer", cfg.Signer).
		Str("metrics_addr", cfg.Service.MetricsAddr).
		Msg("ordersignerd starting")
	return svc.Run()
}

// parseFlags loads the optional config file and overlays explicitly set flags.
func parseFlags(args []string) (runtimeConfig, error) {
	flags := pflag.NewFlagSet("ordersignerd", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a TOML or YAML config file")
	iface := flags.StringP("interface", "i", "", "listen endpoint (unix:<path>, tcp:<host:port>, tls:<host:port>)")
	metricsAddr := flags.String("metrics-addr", "", "serve prometheus metrics on this tcp address")
	signerName := flags.String("signer", "", "signer backend (eth or static)")
	staticSig := flags.String("static-signature", "", "signature returned by the static signer")
	rateLimit := flags.Float64("rate-limit", 0, "per-connection request rate limit (requests/second, 0 disables)")
	rateBurst := flags.Int("rate-burst", 0, "per-connection burst allowance")
	maxFrame := flags.Int("max-frame-bytes", 0, "largest accepted request frame in bytes")
	if err := flags.Parse(args); err != nil {
		return runtimeConfig{}, err
	}

	cfg := defaultRuntimeConfig()
	if path := strings.TrimSpace(*configPath); path != "" {
		loaded, err := loadRuntimeConfig(path)
		if err != nil {
			return runtimeConfig{}, err
		}
		cfg = loaded
	}

	if flags.Changed("interface") {
		cfg.Service.Interface = strings.TrimSpace(*iface)
	}
	if flags.Changed("metrics-addr") {
		cfg.Service.MetricsAddr = strings.TrimSpace(*metricsAddr)
	}
	if flags.Changed("signer") {
		cfg.Signer = strings.ToLower(strings.TrimSpace(*signerName))
	}
	if flags.Changed("static-signature") {
		cfg.StaticSignature = strings.TrimSpace(*staticSig)
	}
	if flags.Changed("rate-limit") {
		cfg.Service.RateLimit = *rateLimit
	}
	if flags.Changed("rate-burst") {
		cfg.Service.RateBurst = *rateBurst
	}
	if flags.Changed("max-frame-bytes") {
		if *maxFrame <= 0 {
			return runtimeConfig{}, fmt.Errorf("--max-frame-bytes must be positive, got %d", *maxFrame)
		}
		cfg.Service.Limits.MaxFrameBytes = *maxFrame
	}
	return cfg, nil
}
