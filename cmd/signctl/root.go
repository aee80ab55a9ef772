package main

import (
	"context"
	"time"

	"github.com/danmuck/ordersigner/internal/client"
	"github.com/danmuck/ordersigner/internal/transport"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	endpoint     string
	timeout      time.Duration
	securityMode string
	caFile       string
	certFile     string
	keyFile      string
	serverName   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "signctl",
		Short:         "Send signing requests to ordersignerd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.endpoint, "endpoint", "e", transport.DefaultEndpoint, "daemon endpoint (unix:<path>, tcp:<host:port>, tls:<host:port>)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline for the command")
	flags.StringVar(&opts.securityMode, "security-mode", string(transport.SecurityModeDevelopment), "transport security mode (development or production)")
	flags.StringVar(&opts.caFile, "ca-file", "", "CA bundle used to verify a tls daemon")
	flags.StringVar(&opts.certFile, "cert-file", "", "client certificate for mutual tls")
	flags.StringVar(&opts.keyFile, "key-file", "", "client key for mutual tls")
	flags.StringVar(&opts.serverName, "server-name", "", "expected daemon certificate name")

	cmd.AddCommand(newSignCmd(opts), newBenchCmd(opts))
	return cmd
}

func (o *rootOptions) clientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.Transport.SecurityMode = transport.NormalizeSecurityMode(transport.SecurityMode(o.securityMode))
	if o.caFile != "" {
		cfg.Transport.TLS.Enabled = true
		cfg.Transport.TLS.CAFile = o.caFile
		cfg.Transport.TLS.ServerName = o.serverName
	}
	if o.certFile != "" || o.keyFile != "" {
		cfg.Transport.TLS.Mutual = true
		cfg.Transport.TLS.CertFile = o.certFile
		cfg.Transport.TLS.KeyFile = o.keyFile
	}
	return cfg
}

// connect dials the daemon under a context bounded by --timeout.
func (o *rootOptions) connect(parent context.Context) (context.Context, context.CancelFunc, *client.Client, error) {
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	c, err := client.Dial(ctx, o.endpoint, o.clientConfig())
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, c, nil
}
