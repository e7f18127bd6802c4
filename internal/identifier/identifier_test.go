package identifier_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/treesync/internal/identifier"
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

func TestUidForPathAllocatesOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, err := identifier.Load(ctx, db, node.DeviceLocalDisk, nil)
	require.NoError(t, err)

	uid1, err := m.UidForPath(ctx, "/home/user/docs")
	require.NoError(t, err)

	uid2, err := m.UidForPath(ctx, "/home/user/docs")
	require.NoError(t, err)

	require.Equal(t, uid1, uid2)

	path, ok := m.PathForUid(uid1)
	require.True(t, ok)
	require.Equal(t, "/home/user/docs", path)
}

func TestUidForPathDistinctPathsDistinctUIDs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, err := identifier.Load(ctx, db, node.DeviceLocalDisk, nil)
	require.NoError(t, err)

	uidA, err := m.UidForPath(ctx, "/a")
	require.NoError(t, err)

	uidB, err := m.UidForPath(ctx, "/b")
	require.NoError(t, err)

	require.NotEqual(t, uidA, uidB)
}

func TestRemovePathForgetsMapping(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, err := identifier.Load(ctx, db, node.DeviceLocalDisk, nil)
	require.NoError(t, err)

	uid, err := m.UidForPath(ctx, "/tmp/x")
	require.NoError(t, err)

	require.NoError(t, m.RemovePath(ctx, "/tmp/x"))

	_, ok := m.PathForUid(uid)
	require.False(t, ok)
}

func TestLoadRehydratesFromDisk(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m1, err := identifier.Load(ctx, db, node.DeviceGDrive, nil)
	require.NoError(t, err)

	uid, err := m1.UidForGoogID(ctx, "goog-123")
	require.NoError(t, err)

	m2, err := identifier.Load(ctx, db, node.DeviceGDrive, nil)
	require.NoError(t, err)

	gotUID, err := m2.UidForGoogID(ctx, "goog-123")
	require.NoError(t, err)
	require.Equal(t, uid, gotUID)

	newUID, err := m2.UidForGoogID(ctx, "goog-456")
	require.NoError(t, err)
	require.NotEqual(t, uid, newUID)
}

func TestAllocatorAllocateUIDDelegatesToMap(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	m, err := identifier.Load(ctx, db, node.DeviceLocalDisk, nil)
	require.NoError(t, err)

	alloc := identifier.NewAllocator(m)

	uid, err := alloc.AllocateUID(ctx, "/tmp/new-file")
	require.NoError(t, err)

	again, err := m.UidForPath(ctx, "/tmp/new-file")
	require.NoError(t, err)
	require.Equal(t, again, uid)
}
