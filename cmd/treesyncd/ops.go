package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "List pending ops in the ledger",
		Long:  `List every op still PENDING in the op ledger, in op UID order. Ops marked STOPPED_ON_ERROR are not listed.`,
		RunE:  runOps,
	}
}

func runOps(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	engine, err := NewEngine(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	rows, err := engine.Ledger.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("loading pending ops: %w", err)
	}

	if len(rows) == 0 {
		cc.Statusf("no pending ops\n")
		return nil
	}

	headers := []string{"OP_UID", "BATCH_UID", "TYPE", "PRIORITY"}
	tableRows := make([][]string, 0, len(rows))

	for _, r := range rows {
		tableRows = append(tableRows, []string{
			fmt.Sprintf("%d", r.OpUID),
			r.BatchUID,
			string(r.OpType),
			fmt.Sprintf("%d", r.Priority),
		})
	}

	printTable(os.Stdout, headers, tableRows)

	return nil
}
