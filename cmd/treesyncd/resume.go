package main

import (
	"github.com/spf13/cobra"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the sync daemon's op-graph dispatch",
		Long: `Clear the on-disk pause marker and, if a daemon is running, send it a
SIGHUP so it resumes dispatching ops immediately.`,
		RunE: runResume,
	}
}

func runResume(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := setPausedOnDisk(cc.Cfg.Local.CacheDir, false); err != nil {
		return err
	}

	cc.Statusf("sync resumed\n")
	notifyDaemon(cc.Flags.Quiet, cc.Cfg.Local.CacheDir)

	return nil
}
