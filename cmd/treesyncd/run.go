package main

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/treesync/internal/backend"
)

const pidFileName = "treesyncd.pid"

func pidFilePath(cacheDir string) string {
	return filepath.Join(cacheDir, pidFileName)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Run the long-lived sync daemon: watch the local tree for changes and
drain the operation graph through the central executor until interrupted.
Local change events are logged at debug level only; they are not applied
to the tree-store. The remote tree is not polled.

A SIGHUP re-checks the on-disk pause marker and pauses or resumes the
executor accordingly, without restarting.`,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	cleanup, err := writePIDFile(pidFilePath(cc.Cfg.Local.CacheDir))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(context.Background(), logger)

	engine, err := NewEngine(ctx, cc.Cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Resume(ctx); err != nil {
		return err
	}

	if isPausedOnDisk(cc.Cfg.Local.CacheDir) {
		engine.Executor.Pause()
	}

	engine.Executor.Start(ctx)

	producer := backend.NewLocalProducer(logger)
	defer producer.Close()

	watchErrCh := make(chan error, 1)
	go func() {
		watchErrCh <- producer.Watch(ctx, cc.Cfg.Local.RootDir, func(ev backend.LocalEvent) {
			logger.Debug("local fs event", slog.String("path", ev.Path), slog.Bool("removed", ev.Removed))
		})
	}()

	sighup := sighupChannel()
	defer signal.Stop(sighup)

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon shutting down")
			return nil
		case err := <-watchErrCh:
			if err != nil && ctx.Err() == nil {
				logger.Error("local watch loop exited", slog.String("error", err.Error()))
			}
		case <-sighup:
			logger.Info("reloading pause/resume state on SIGHUP")

			if isPausedOnDisk(cc.Cfg.Local.CacheDir) {
				engine.Executor.Pause()
			} else {
				engine.Executor.Resume()
			}
		}
	}
}
