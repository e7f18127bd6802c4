package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/node"
)

// seedLocalFile allocates a UID for path on the local device, upserts a live
// file node for it into the local tree-store, and returns the UID.
func seedLocalFile(t *testing.T, ctx context.Context, engine *Engine, path, name string) node.UID {
	t.Helper()

	uid, err := engine.LocalIDs.UidForPath(ctx, path)
	require.NoError(t, err)

	store, ok := engine.Registry.GetStoreForDeviceUID(node.DeviceLocalDisk)
	require.True(t, ok)

	n := &node.LocalFileNode{
		BaseNode: node.BaseNode{
			UID:        uid,
			DeviceUID:  node.DeviceLocalDisk,
			Kind:       node.KindLocalFile,
			Name:       name,
			ParentUIDs: []node.UID{1},
			IsLive:     true,
			PathList:   []string{path},
		},
		Size: 3,
	}

	require.NoError(t, store.Upsert(ctx, n))

	return uid
}

func TestRunRM_DeletesSeededLocalFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)

	path := filepath.Join(cfg.Local.RootDir, "doomed.txt")

	seedEngine, err := NewEngine(ctx, cfg, testLogger())
	require.NoError(t, err)

	seedLocalFile(t, ctx, seedEngine, path, "doomed.txt")
	require.NoError(t, seedEngine.Close())

	cc := &CLIContext{Cfg: cfg, Logger: testLogger(), Flags: Flags{Quiet: true}}

	require.NoError(t, runRM(ctx, cc, []string{path}, node.DeviceLocalDisk, false))
}

func TestRunRM_UnresolvablePathFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)
	cc := &CLIContext{Cfg: cfg, Logger: testLogger(), Flags: Flags{Quiet: true}}

	err := runRM(ctx, cc, []string{filepath.Join(cfg.Local.RootDir, "never-cached.txt")}, node.DeviceLocalDisk, false)
	require.Error(t, err)
}
