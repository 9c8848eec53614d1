// Command courier runs the resequencer, the readiness router, a demo worker
// or a fragment producer against a NATS JetStream server.
//
// Usage:
//
//	courier --config courier.yaml resequencer
//	courier --config courier.yaml router
//	courier --config courier.yaml worker --queue courier.worker.a
//	courier --config courier.yaml produce --parts 8 --shuffle "payload"
//	courier dev-server --port 4222
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "courier",
		Short:         "Message resequencing and readiness routing over NATS JetStream",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (defaults apply when empty)")

	root.AddCommand(
		newResequencerCmd(&configPath),
		newRouterCmd(&configPath),
		newWorkerCmd(&configPath),
		newProduceCmd(&configPath),
		newDevServerCmd(),
	)

	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
