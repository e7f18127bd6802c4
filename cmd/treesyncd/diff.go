package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/treesync/internal/contentmeta"
	"github.com/tonimelisma/treesync/internal/diffview"
	"github.com/tonimelisma/treesync/internal/node"
)

func newDiffCmd() *cobra.Command {
	var flagAll bool

	cmd := &cobra.Command{
		Use:   "diff <local-path> <remote-path>",
		Short: "Compare a local directory's children against a remote directory's",
		Long: `List every name that appears under local-path and/or remote-path,
classified as local-only, remote-only, differs, or unchanged. Directories
are compared by presence only — their contents are not recursed into.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			return runDiff(cmd.Context(), cc, args[0], args[1], flagAll)
		},
	}

	cmd.Flags().BoolVar(&flagAll, "all", false, "also list unchanged entries")

	return cmd
}

func runDiff(ctx context.Context, cc *CLIContext, localPath, remotePath string, showAll bool) error {
	engine, err := NewEngine(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	localNode, err := engine.ResolveByPath(ctx, node.DeviceLocalDisk, localPath)
	if err != nil {
		return err
	}

	remoteNode, err := engine.ResolveByPath(ctx, node.DeviceGDrive, remotePath)
	if err != nil {
		return err
	}

	localStore, ok := engine.Registry.GetStoreForDeviceUID(node.DeviceLocalDisk)
	if !ok {
		return fmt.Errorf("no local tree-store loaded")
	}

	remoteStore, ok := engine.Registry.GetStoreForDeviceUID(node.DeviceGDrive)
	if !ok {
		return fmt.Errorf("no remote tree-store loaded")
	}

	entries := diffview.Diff(
		localStore.ChildrenOf(localNode.GetUID()),
		remoteStore.ChildrenOf(remoteNode.GetUID()),
		contentmeta.Equal,
	)

	printDiff(cc, entries, showAll)

	return nil
}

func printDiff(cc *CLIContext, entries []diffview.Entry, showAll bool) {
	summary := diffview.Summarize(entries)
	cc.Statusf("%d unchanged, %d local-only, %d remote-only, %d differ\n",
		summary.Unchanged, summary.LocalOnly, summary.RemoteOnly, summary.Differs)

	headers := []string{"NAME", "STATUS"}
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		if e.Status == diffview.Unchanged && !showAll {
			continue
		}
		rows = append(rows, []string{e.Name, e.Status.String()})
	}

	if len(rows) == 0 {
		return
	}

	printTable(os.Stdout, headers, rows)
}
