package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/treesync/internal/node"
)

func newRMCmd() *cobra.Command {
	var (
		flagDevice string
		flagForce  bool
	)

	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Plan and execute a deletion gesture",
		Long:  `Delete one or more nodes (and their subtrees, for directories) from one device.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			return runRM(cmd.Context(), cc, args, deviceFromFlag(flagDevice), flagForce)
		},
	}

	cmd.Flags().StringVar(&flagDevice, "device", "local", "device to delete from: local|remote")
	cmd.Flags().BoolVar(&flagForce, "force", false, "override the big-batch safety guard")

	return cmd
}

func runRM(ctx context.Context, cc *CLIContext, paths []string, deviceUID node.DeviceUID, force bool) error {
	engine, err := NewEngine(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	roots := make([]node.Node, 0, len(paths))
	for _, p := range paths {
		n, err := engine.ResolveByPath(ctx, deviceUID, p)
		if err != nil {
			return err
		}
		roots = append(roots, n)
	}

	p, err := engine.Planner(deviceUID, deviceUID)
	if err != nil {
		return err
	}

	batch := p.DeleteSubtree(uuid.NewString(), roots)

	cc.Statusf("planned %d ops in batch %s\n", len(batch.OpList), batch.BatchUID)

	if err := engine.RunBatchToCompletion(ctx, batch, force); err != nil {
		return fmt.Errorf("draining batch: %w", err)
	}

	cc.Statusf("batch %s complete\n", batch.BatchUID)

	return nil
}
