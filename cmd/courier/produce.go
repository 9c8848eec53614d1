package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arloliu/courier"
)

func newProduceCmd(configPath *string) *cobra.Command {
	var (
		parts   int
		shuffle bool
		seed    uint64
		work    bool
		count   int
	)

	cmd := &cobra.Command{
		Use:   "produce [payload]",
		Short: "Publish a payload as fragments, or as work items with --work",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := newRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			payload := []byte(strings.Join(args, " "))

			if work {
				for i := range count {
					headers := courier.Headers{courier.HeaderWorkID: fmt.Sprintf("cli-%d", i)}
					if err := rt.bus.Publish(ctx, rt.cfg.Router.WorkSubject, payload, headers); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published %d work items to %s\n", count, rt.cfg.Router.WorkSubject)

				return nil
			}

			var opts []courier.FragmenterOption
			if shuffle {
				opts = append(opts, courier.WithShuffle(seed))
			}
			f, err := courier.NewFragmenter(rt.bus, opts...)
			if err != nil {
				return err
			}

			for range count {
				groupID, err := f.Publish(ctx, rt.cfg.Resequencer.InboundSubject, payload, parts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "published group %s (%d fragments)\n", groupID, parts)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&parts, "parts", 4, "number of fragments per payload")
	cmd.Flags().BoolVar(&shuffle, "shuffle", false, "publish fragments in random order")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "shuffle seed (0 picks a random seed)")
	cmd.Flags().BoolVar(&work, "work", false, "publish work items to the router instead of fragments")
	cmd.Flags().IntVar(&count, "count", 1, "number of payloads to publish")

	return cmd
}
