package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/ordersigner/internal/client"
	"github.com/danmuck/ordersigner/internal/protocol/envelope"
	"github.com/spf13/cobra"
)

// benchSignerKey is a throwaway secp256k1 key; never fund it.
const benchSignerKey = "0xb98ea45b6515cbd6a5c39108612b2cd5ae184d5eb0d72b21389a1fe6db01fe0d"

type benchOptions struct {
	count     int
	kind      string
	signerKey string
}

type benchResult struct {
	Sent     int
	Signed   int
	Rejected int
	Failed   int
	Elapsed  time.Duration
}

func (r benchResult) rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Sent) / r.Elapsed.Seconds()
}

func newBenchCmd(root *rootOptions) *cobra.Command {
	opts := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Pipeline many sign requests over one connection and report throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind := envelope.Kind(opts.kind)
			if !kind.Valid() {
				return fmt.Errorf("unknown kind %q", opts.kind)
			}
			if opts.count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			ctx, cancel, c, err := root.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			res, err := runBench(c, sampleRequest(kind, opts.signerKey), opts.count, func(p *client.Pending) (string, error) {
				return p.Wait(ctx)
			})
			fmt.Fprintf(cmd.OutOrStdout(), "sent=%d signed=%d rejected=%d failed=%d elapsed=%s rate=%.0f/s\n",
				res.Sent, res.Signed, res.Rejected, res.Failed, res.Elapsed.Round(time.Millisecond), res.rate())
			return err
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&opts.count, "count", "n", 1000, "number of requests to send")
	flags.StringVar(&opts.kind, "kind", string(envelope.KindSpot), "request kind (spot or futures)")
	flags.StringVar(&opts.signerKey, "signer", benchSignerKey, "signer key passed to the daemon")
	return cmd
}

// runBench sends every request before awaiting any response. The first
// transport failure is returned alongside the counts.
func runBench(c *client.Client, req envelope.SignRequest, count int, wait func(*client.Pending) (string, error)) (benchResult, error) {
	start := time.Now()
	pending := make([]*client.Pending, 0, count)
	for i := 0; i < count; i++ {
		pending = append(pending, c.Send(req))
	}

	res := benchResult{Sent: count}
	var firstErr error
	for _, p := range pending {
		_, err := wait(p)
		var resp *client.ErrorResponse
		switch {
		case err == nil:
			res.Signed++
		case errors.As(err, &resp):
			res.Rejected++
		default:
			res.Failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	res.Elapsed = time.Since(start)
	return res, firstErr
}

func sampleRequest(kind envelope.Kind, signerKey string) envelope.SignRequest {
	return envelope.SignRequest{
		Kind: kind,
		Order: envelope.Object{
			"accountId":  "0x12AB",
			"side":       "buy",
			"quantity":   "12.3343",
			"price":      "1813.5",
			"orderType":  "LMT",
			"timestamp":  "12382173200872",
			"instrument": "LEVETH",
		},
		Instrument: envelope.Object{
			"symbol":          "LEVETH",
			"quoteSymbol":     "ETH",
			"baseDecimals":    "18",
			"quoteDecimals":   "18",
			"tickSize":        "0.01",
			"contractAddress": "0x167cdb1aC9979A6a694B368ED3D2bF9259Fa8282",
		},
		Signer: signerKey,
	}
}
