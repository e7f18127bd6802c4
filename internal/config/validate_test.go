package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Local.RootDir = "/srv/sync"

	return cfg
}

func TestValidateMissingRootDir(t *testing.T) {
	cfg := DefaultConfig()

	require.ErrorIs(t, Validate(cfg), ErrMissingRootDir)
}

func TestValidateRejectsZeroWorkerCount(t *testing.T) {
	cfg := validConfig()
	cfg.Workers.MaxConcurrentUserOpTasks = 0

	require.ErrorIs(t, Validate(cfg), ErrInvalidWorkerCount)
}

func TestValidateRejectsBadPercentage(t *testing.T) {
	cfg := validConfig()
	cfg.Safety.BigBatchPercentage = 150

	require.Error(t, Validate(cfg))
}

func TestValidateRejectsUnparseableDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Poll.LocalPollInterval = "not-a-duration"

	require.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.LogLevel = "verbose"

	require.Error(t, Validate(cfg))
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}
