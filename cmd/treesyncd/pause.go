package main

import (
	"github.com/spf13/cobra"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the sync daemon's op-graph dispatch",
		Long: `Set the on-disk pause marker and, if a daemon is running, send it a
SIGHUP so it picks up the change immediately. A paused daemon keeps
watching and scanning but stops dispatching ops through the executor
until resumed.`,
		RunE: runPause,
	}
}

func runPause(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := setPausedOnDisk(cc.Cfg.Local.CacheDir, true); err != nil {
		return err
	}

	cc.Statusf("sync paused\n")
	notifyDaemon(cc.Flags.Quiet, cc.Cfg.Local.CacheDir)

	return nil
}

// notifyDaemon attempts to send SIGHUP to a running daemon. Non-fatal: if
// no daemon is running, prints a note instead — the marker file still
// takes effect on the next daemon start.
func notifyDaemon(quiet bool, cacheDir string) {
	pidPath := pidFilePath(cacheDir)

	if err := sendSIGHUP(pidPath); err != nil {
		statusf(quiet, "Note: %v — takes effect on next daemon start\n", err)
	} else {
		statusf(quiet, "notified running daemon\n")
	}
}
