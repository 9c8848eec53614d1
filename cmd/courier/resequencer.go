package main

import (
	"github.com/spf13/cobra"

	"github.com/arloliu/courier"
)

func newResequencerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resequencer",
		Short: "Reassemble fragment groups from the inbound subject",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.serveMetrics(ctx)

			ledger, err := rt.ledger(ctx)
			if err != nil {
				return err
			}

			sink := courier.NewPublishSink(rt.bus, rt.cfg.Resequencer.OutputSubject)
			rs, err := courier.NewResequencer(rt.cfg, rt.bus, sink,
				courier.WithLogger(rt.logger),
				courier.WithMetrics(rt.metrics),
				courier.WithLedger(ledger),
			)
			if err != nil {
				return err
			}

			return runUntilSignal(ctx, rs, rt.logger)
		},
	}
}
