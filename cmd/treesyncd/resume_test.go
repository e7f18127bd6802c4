package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunResume_ClearsMarkerWithoutRunningDaemon(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cc := &CLIContext{Cfg: cfg, Logger: testLogger(), Flags: Flags{Quiet: true}}

	require.NoError(t, setPausedOnDisk(cfg.Local.CacheDir, true))

	require.NoError(t, runResume(cmdWithCLIContext(cc), nil))
	assert.False(t, isPausedOnDisk(cfg.Local.CacheDir))
}
