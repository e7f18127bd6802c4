package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPause_SetsMarkerWithoutRunningDaemon(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cc := &CLIContext{Cfg: cfg, Logger: testLogger(), Flags: Flags{Quiet: true}}

	cmd := cmdWithCLIContext(cc)

	require.NoError(t, runPause(cmd, nil))
	assert.True(t, isPausedOnDisk(cfg.Local.CacheDir))
}

func TestNotifyDaemon_NoRunningDaemonIsNonFatal(t *testing.T) {
	t.Parallel()

	// No PID file exists under this cache dir — notifyDaemon must not panic
	// or block, only print a note (suppressed here by quiet=true).
	notifyDaemon(true, t.TempDir())
}
