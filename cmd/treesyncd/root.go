package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/treesync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Flags holds every persistent flag value, bound once in newRootCmd.
type Flags struct {
	ConfigPath string
	RootDir    string
	CacheDir   string
	JSON       bool
	Quiet      bool
	Verbose    bool
	Debug      bool
}

// CLIContext bundles resolved config, logger, and flags for one command
// invocation. Created once in PersistentPreRunE; RunE handlers pull it back
// out of the command's context instead of threading it as a parameter.
type CLIContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Flags  Flags
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message — a command tree bug, never a user-facing condition.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — command skips config " +
			"resolution without handling it in its own RunE")
	}

	return cc
}

var rootFlags Flags

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "treesyncd",
		Short:         "Bidirectional local-disk/Google-Drive tree sync daemon and CLI",
		Long:          "treesyncd reconciles a local POSIX directory tree against a Google Drive tree via drag/deletion gestures, conflict policies, and a crash-recoverable op ledger.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&rootFlags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&rootFlags.RootDir, "root", "", "local sync root directory")
	cmd.PersistentFlags().StringVar(&rootFlags.CacheDir, "cache-dir", "", "cache/state directory")
	cmd.PersistentFlags().BoolVar(&rootFlags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&rootFlags.Verbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&rootFlags.Debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&rootFlags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDragCmd())
	cmd.AddCommand(newRMCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newOpsCmd())
	cmd.AddCommand(newDiffCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores the result, plus a logger built from it, in the
// command's context for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	overrides := config.Overrides{
		RootDir:  rootFlags.RootDir,
		CacheDir: rootFlags.CacheDir,
	}

	cfgPath := rootFlags.ConfigPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.Resolve(cfgPath, overrides, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	finalLogger := buildLogger(cfg)
	cc := &CLIContext{Cfg: cfg, Logger: finalLogger, Flags: rootFlags}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap. CLI flags always win over
// the config file's log_level.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if rootFlags.Verbose {
		level = slog.LevelInfo
	}

	if rootFlags.Debug {
		level = slog.LevelDebug
	}

	if rootFlags.Quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
