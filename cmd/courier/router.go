package main

import (
	"github.com/spf13/cobra"

	"github.com/arloliu/courier"
)

func newRouterCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "router",
		Short: "Route work items to the most recently ready worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.serveMetrics(ctx)

			router, err := courier.NewRouter(rt.cfg, rt.bus,
				courier.WithLogger(rt.logger),
				courier.WithMetrics(rt.metrics),
			)
			if err != nil {
				return err
			}

			return runUntilSignal(ctx, router, rt.logger)
		},
	}
}
