package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	daemonStateRunning = "running"
	daemonStatePaused  = "paused"
	daemonStateStopped = "stopped"
)

// statusReport is the status command's JSON/text output shape.
type statusReport struct {
	DaemonState string `json:"daemon_state"`
	RootDir     string `json:"root_dir"`
	CacheDir    string `json:"cache_dir"`
	PendingOps  int    `json:"pending_ops"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pending-op status",
		Long:  `Report whether the daemon is running and paused, and how many ops are pending in the ledger.`,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	report := statusReport{
		RootDir:     cc.Cfg.Local.RootDir,
		CacheDir:    cc.Cfg.Local.CacheDir,
		DaemonState: daemonState(cc),
	}

	if count, err := pendingOpCount(ctx, cc); err == nil {
		report.PendingOps = count
	} else {
		cc.Logger.Debug("could not read pending op count", "error", err)
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	}

	printStatusText(report)

	return nil
}

func daemonState(cc *CLIContext) string {
	if _, err := readPIDFile(pidFilePath(cc.Cfg.Local.CacheDir)); err != nil {
		return daemonStateStopped
	}

	if isPausedOnDisk(cc.Cfg.Local.CacheDir) {
		return daemonStatePaused
	}

	return daemonStateRunning
}

// pendingOpCount opens the engine just long enough to count ledger rows —
// a status check never starts the executor or touches the op graph.
func pendingOpCount(ctx context.Context, cc *CLIContext) (int, error) {
	engine, err := NewEngine(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return 0, err
	}
	defer engine.Close()

	rows, err := engine.Ledger.LoadPending(ctx)
	if err != nil {
		return 0, err
	}

	return len(rows), nil
}

func printStatusText(r statusReport) {
	fmt.Printf("Daemon:      %s\n", r.DaemonState)
	fmt.Printf("Root dir:    %s\n", r.RootDir)
	fmt.Printf("Cache dir:   %s\n", r.CacheDir)
	fmt.Printf("Pending ops: %d\n", r.PendingOps)
}
