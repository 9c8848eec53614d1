package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/courier"
	"github.com/arloliu/courier/worker"
)

func newWorkerCmd(configPath *string) *cobra.Command {
	var (
		queue    string
		delay    time.Duration
		announce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a demo worker that logs each work item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			handler := worker.HandlerFunc(func(ctx context.Context, payload []byte, headers courier.Headers) error {
				workID, _ := headers.GetString(courier.HeaderWorkID)
				rt.logger.Info("processing work item", "workID", workID, "size", len(payload))
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}

				return nil
			})

			w, err := worker.New(rt.bus, worker.Config{
				ReadySubject:       rt.cfg.Router.ReadySubject,
				Queue:              queue,
				ReannounceInterval: announce,
				Logger:             rt.logger,
			}, handler)
			if err != nil {
				return err
			}

			if err := w.Start(ctx); err != nil {
				return err
			}
			rt.logger.Info("worker started", "queue", w.ID())

			<-ctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()

			return w.Stop(stopCtx)
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "worker queue subject (default courier.worker.<random>)")
	cmd.Flags().DurationVar(&delay, "delay", 100*time.Millisecond, "simulated processing time per item")
	cmd.Flags().DurationVar(&announce, "reannounce", 10*time.Second, "re-announce readiness while idle (0 disables)")

	return cmd
}
