package cacheregistry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/cacheregistry"
	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()

	db, err := storage.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestRegisterAndListCaches(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	r, err := cacheregistry.New(ctx, db, nil, nil)
	require.NoError(t, err)

	require.NoError(t, r.RegisterCache(ctx, cacheregistry.Info{
		DeviceUID: node.DeviceLocalDisk, SubtreeRoot: "/home/user", SubtreeUID: 1, IsLoaded: true,
	}))

	caches := r.CachesForDevice(node.DeviceLocalDisk)
	require.Len(t, caches, 1)
	require.Equal(t, "/home/user", caches[0].SubtreeRoot)
}

func TestConsolidateDropsDescendantCache(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	r, err := cacheregistry.New(ctx, db, nil, nil)
	require.NoError(t, err)

	require.NoError(t, r.RegisterCache(ctx, cacheregistry.Info{
		DeviceUID: node.DeviceLocalDisk, SubtreeRoot: "/home/user", SubtreeUID: 1, IsLoaded: true,
	}))
	require.NoError(t, r.RegisterCache(ctx, cacheregistry.Info{
		DeviceUID: node.DeviceLocalDisk, SubtreeRoot: "/home/user/docs", SubtreeUID: 2, IsLoaded: true,
	}))

	r2, err := cacheregistry.New(ctx, db, nil, nil)
	require.NoError(t, err)

	caches := r2.CachesForDevice(node.DeviceLocalDisk)
	require.Len(t, caches, 1)
	require.Equal(t, "/home/user", caches[0].SubtreeRoot)
}

func TestEnsureCachesLoadedForNodes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	r, err := cacheregistry.New(ctx, db, nil, nil)
	require.NoError(t, err)

	require.NoError(t, r.RegisterCache(ctx, cacheregistry.Info{
		DeviceUID: node.DeviceLocalDisk, SubtreeRoot: "/home/user", SubtreeUID: 1, IsLoaded: true,
	}))

	covered, missing := r.EnsureCachesLoadedForNodes(node.DeviceLocalDisk, []string{"/home/user/docs", "/other"})
	require.Equal(t, []string{"/home/user/docs"}, covered)
	require.Equal(t, []string{"/other"}, missing)
}

func TestEnsureStoreOpensOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	r, err := cacheregistry.New(ctx, db, nil, nil)
	require.NoError(t, err)

	s1, err := r.EnsureStore(ctx, node.DeviceLocalDisk)
	require.NoError(t, err)

	s2, err := r.EnsureStore(ctx, node.DeviceLocalDisk)
	require.NoError(t, err)

	require.Same(t, s1, s2)
}

func TestCloseFinalizesOpenedStores(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	r, err := cacheregistry.New(ctx, db, nil, nil)
	require.NoError(t, err)

	_, err = r.EnsureStore(ctx, node.DeviceLocalDisk)
	require.NoError(t, err)
	_, err = r.EnsureStore(ctx, node.DeviceGDrive)
	require.NoError(t, err)

	require.NoError(t, r.Close())
}
