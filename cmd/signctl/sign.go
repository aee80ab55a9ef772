package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/danmuck/ordersigner/internal/client"
	"github.com/danmuck/ordersigner/internal/protocol/envelope"
	"github.com/spf13/cobra"
)

type signOptions struct {
	orderFile      string
	instrumentFile string
	signerKey      string
}

func newSignCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign one order",
	}
	for _, kind := range envelope.Kinds() {
		cmd.AddCommand(newSignKindCmd(root, kind))
	}
	return cmd
}

func newSignKindCmd(root *rootOptions, kind envelope.Kind) *cobra.Command {
	opts := &signOptions{}
	cmd := &cobra.Command{
		Use:   string(kind),
		Short: fmt.Sprintf("Sign a %s order", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request(kind)
			if err != nil {
				return err
			}
			ctx, cancel, c, err := root.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			defer c.Close()

			sig, err := c.Sign(ctx, req)
			if err != nil {
				return describeFailure(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.orderFile, "order", "", "path to the order JSON object")
	flags.StringVar(&opts.instrumentFile, "instrument", "", "path to the instrument JSON object")
	flags.StringVar(&opts.signerKey, "signer", "", "signer key passed to the daemon")
	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("instrument")
	_ = cmd.MarkFlagRequired("signer")
	return cmd
}

func (o *signOptions) request(kind envelope.Kind) (envelope.SignRequest, error) {
	order, err := readObject(o.orderFile)
	if err != nil {
		return envelope.SignRequest{}, fmt.Errorf("read order: %w", err)
	}
	instrument, err := readObject(o.instrumentFile)
	if err != nil {
		return envelope.SignRequest{}, fmt.Errorf("read instrument: %w", err)
	}
	return envelope.SignRequest{Kind: kind, Order: order, Instrument: instrument, Signer: o.signerKey}, nil
}

func readObject(path string) (envelope.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var obj envelope.Object
	if err := envelope.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%s: expected a JSON object", path)
	}
	return obj, nil
}

// describeFailure prints a daemon error response with its context and returns
// a short error for the exit status.
func describeFailure(cmd *cobra.Command, err error) error {
	var resp *client.ErrorResponse
	if !errors.As(err, &resp) {
		return err
	}
	detail, _ := json.MarshalIndent(resp.Context, "", "  ")
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n%s\n", resp.Type, resp.Message, detail)
	return fmt.Errorf("daemon rejected request: %s", resp.Type)
}
