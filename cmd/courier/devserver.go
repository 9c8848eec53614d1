package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/spf13/cobra"
)

// newDevServerCmd runs an in-process JetStream server for local experiments.
func newDevServerCmd() *cobra.Command {
	var (
		host     string
		port     int
		storeDir string
	)

	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run a local NATS server with JetStream enabled",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if storeDir == "" {
				dir, err := os.MkdirTemp("", "courier-nats-*")
				if err != nil {
					return fmt.Errorf("create store dir: %w", err)
				}
				defer func() { _ = os.RemoveAll(dir) }()
				storeDir = dir
			}

			srv, err := server.NewServer(&server.Options{
				Host:      host,
				Port:      port,
				JetStream: true,
				StoreDir:  storeDir,
				NoLog:     true,
				NoSigs:    true,
			})
			if err != nil {
				return fmt.Errorf("create nats server: %w", err)
			}

			go srv.Start()
			if !srv.ReadyForConnections(10 * time.Second) {
				srv.Shutdown()
				return errors.New("nats server not ready within 10s")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "NATS_URL=%s\n", srv.ClientURL())

			<-ctx.Done()
			srv.Shutdown()
			srv.WaitForShutdown()

			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "listen host")
	cmd.Flags().IntVar(&port, "port", 4222, "listen port (-1 picks a random port)")
	cmd.Flags().StringVar(&storeDir, "store-dir", "", "JetStream store directory (default: temporary)")

	return cmd
}
