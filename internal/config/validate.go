package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingRootDir is returned by Validate when no local root directory
	// was supplied by any of the four override layers.
	ErrMissingRootDir = errors.New("config: local.root_dir is required")
	// ErrInvalidWorkerCount is returned when a worker pool size is non-positive.
	ErrInvalidWorkerCount = errors.New("config: worker pool sizes must be positive")
)

// Validate checks cfg for internally-consistent, usable values. It does not
// touch the filesystem; callers resolve RootDir/CacheDir to absolute,
// existing paths separately.
func Validate(cfg *Config) error {
	if cfg.Local.RootDir == "" {
		return ErrMissingRootDir
	}

	if cfg.Workers.MaxConcurrentUserOpTasks <= 0 || cfg.Workers.MaxConcurrentNonUserOpTasks <= 0 {
		return ErrInvalidWorkerCount
	}

	if cfg.Safety.BigBatchThreshold < 0 || cfg.Safety.BigBatchMinItems < 0 {
		return fmt.Errorf("config: safety thresholds must be non-negative")
	}

	if cfg.Safety.BigBatchPercentage < 0 || cfg.Safety.BigBatchPercentage > 100 {
		return fmt.Errorf("config: safety.big_batch_percentage must be 0-100, got %d", cfg.Safety.BigBatchPercentage)
	}

	if _, err := time.ParseDuration(cfg.Poll.LocalPollInterval); err != nil {
		return fmt.Errorf("config: poll.local_poll_interval: %w", err)
	}

	if _, err := time.ParseDuration(cfg.Poll.RemotePollInterval); err != nil {
		return fmt.Errorf("config: poll.remote_poll_interval: %w", err)
	}

	if _, err := time.ParseDuration(cfg.Network.ConnectTimeout); err != nil {
		return fmt.Errorf("config: network.connect_timeout: %w", err)
	}

	switch cfg.Logging.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.log_level %q is not one of debug/info/warn/error", cfg.Logging.LogLevel)
	}

	return nil
}
