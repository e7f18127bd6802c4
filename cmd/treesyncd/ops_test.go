package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunOps_NoPendingOpsSucceeds(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cc := &CLIContext{Cfg: cfg, Logger: testLogger(), Flags: Flags{Quiet: true}}

	require.NoError(t, runOps(cmdWithCLIContext(cc), nil))
}
