package main

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/config"
	"github.com/tonimelisma/treesync/internal/node"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Local.RootDir = t.TempDir()
	cfg.Local.CacheDir = t.TempDir()

	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewEngineOpensEveryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, err := NewEngine(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer engine.Close()

	_, ok := engine.Registry.GetStoreForDeviceUID(node.DeviceLocalDisk)
	require.True(t, ok)

	_, ok = engine.Registry.GetStoreForDeviceUID(node.DeviceGDrive)
	require.True(t, ok)
}

func TestResolveByPathFailsBeforeAnyNodeIsCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, err := NewEngine(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.ResolveByPath(ctx, node.DeviceLocalDisk, "/some/path")
	require.Error(t, err)
}

func TestPlannerRejectsUnopenedDevice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, err := NewEngine(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.Planner(node.DeviceLocalDisk, node.DeviceSuperRoot)
	require.Error(t, err)
}

func TestResumeWithEmptyLedgerIsANoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, err := NewEngine(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, engine.Resume(ctx))
}

func TestCloseReleasesEveryOpenedResource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, err := NewEngine(ctx, testConfig(t), nil)
	require.NoError(t, err)

	require.NoError(t, engine.Close())
}
