// Package identifier maintains the process-wide mapping between a node's
// backend-facing key (a local filesystem path, or a GDrive goog_id) and its
// UID. Every mapping is loaded eagerly at startup and kept in memory; writes
// go through to SQLite so the next startup can rehydrate instantly.
package identifier

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/storage"
)

// Map resolves identities for a single device. The local device uses
// UidForPath/PathForUid; the GDrive device uses UidForGoogID/GoogIDForUid.
// Both may be populated for devices that have both a path and a goog_id
// (not expected in this build, but the table supports it).
type Map struct {
	mu        sync.RWMutex
	deviceUID node.DeviceUID
	nextUID   node.UID

	pathToUID map[string]node.UID
	uidToPath map[node.UID]string

	googIDToUID map[string]node.UID
	uidToGoogID map[node.UID]string

	db     *sql.DB
	logger *slog.Logger

	stmtInsertPath *sql.Stmt
	stmtInsertGoog *sql.Stmt
	stmtDeletePath *sql.Stmt
	stmtDeleteGoog *sql.Stmt
}

// Load constructs a Map for deviceUID, reading every existing path/goog_id
// mapping for that device into memory.
func Load(ctx context.Context, db *storage.DB, deviceUID node.DeviceUID, logger *slog.Logger) (*Map, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Map{
		deviceUID:   deviceUID,
		pathToUID:   make(map[string]node.UID),
		uidToPath:   make(map[node.UID]string),
		googIDToUID: make(map[string]node.UID),
		uidToGoogID: make(map[node.UID]string),
		db:          db.Conn,
		logger:      logger,
	}

	if err := m.prepare(ctx); err != nil {
		return nil, err
	}

	if err := m.loadCounter(ctx); err != nil {
		return nil, err
	}

	if err := m.loadPaths(ctx); err != nil {
		return nil, err
	}

	if err := m.loadGoogIDs(ctx); err != nil {
		return nil, err
	}

	logger.Info("identifier map loaded",
		slog.Int("device_uid", int(deviceUID)),
		slog.Int("paths", len(m.pathToUID)),
		slog.Int("goog_ids", len(m.googIDToUID)),
	)

	return m, nil
}

func (m *Map) prepare(ctx context.Context) error {
	return storage.PrepareAll(ctx, m.db, []storage.StmtDef{
		{Dest: &m.stmtInsertPath, SQL: `INSERT INTO path_uid (device_uid, path, uid) VALUES (?, ?, ?)
			ON CONFLICT(device_uid, path) DO UPDATE SET uid = excluded.uid`, Name: "insertPathUID"},
		{Dest: &m.stmtInsertGoog, SQL: `INSERT INTO goog_id_uid (device_uid, goog_id, uid) VALUES (?, ?, ?)
			ON CONFLICT(device_uid, goog_id) DO UPDATE SET uid = excluded.uid`, Name: "insertGoogIDUID"},
		{Dest: &m.stmtDeletePath, SQL: `DELETE FROM path_uid WHERE device_uid = ? AND path = ?`, Name: "deletePathUID"},
		{Dest: &m.stmtDeleteGoog, SQL: `DELETE FROM goog_id_uid WHERE device_uid = ? AND goog_id = ?`, Name: "deleteGoogIDUID"},
	})
}

func (m *Map) loadCounter(ctx context.Context) error {
	var next uint64

	err := m.db.QueryRowContext(ctx,
		`SELECT next_uid FROM uid_counter WHERE device_uid = ?`, m.deviceUID).Scan(&next)

	switch {
	case err == sql.ErrNoRows:
		m.nextUID = node.UID(1)
		_, err = m.db.ExecContext(ctx,
			`INSERT INTO uid_counter (device_uid, next_uid) VALUES (?, ?)`, m.deviceUID, uint64(m.nextUID))
		return err
	case err != nil:
		return fmt.Errorf("load uid counter: %w", err)
	default:
		m.nextUID = node.UID(next)
		return nil
	}
}

func (m *Map) loadPaths(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx,
		`SELECT path, uid FROM path_uid WHERE device_uid = ?`, m.deviceUID)
	if err != nil {
		return fmt.Errorf("query path_uid: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path string
			uid  uint64
		)

		if err := rows.Scan(&path, &uid); err != nil {
			return fmt.Errorf("scan path_uid row: %w", err)
		}

		m.pathToUID[path] = node.UID(uid)
		m.uidToPath[node.UID(uid)] = path
	}

	return rows.Err()
}

func (m *Map) loadGoogIDs(ctx context.Context) error {
	rows, err := m.db.QueryContext(ctx,
		`SELECT goog_id, uid FROM goog_id_uid WHERE device_uid = ?`, m.deviceUID)
	if err != nil {
		return fmt.Errorf("query goog_id_uid: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			googID string
			uid    uint64
		)

		if err := rows.Scan(&googID, &uid); err != nil {
			return fmt.Errorf("scan goog_id_uid row: %w", err)
		}

		m.googIDToUID[googID] = node.UID(uid)
		m.uidToGoogID[node.UID(uid)] = googID
	}

	return rows.Err()
}

// UidForPath returns the existing UID for path, allocating and persisting a
// new one if path has never been seen on this device.
func (m *Map) UidForPath(ctx context.Context, path string) (node.UID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uid, ok := m.pathToUID[path]; ok {
		return uid, nil
	}

	uid := m.allocUIDLocked()

	if _, err := m.stmtInsertPath.ExecContext(ctx, m.deviceUID, path, uint64(uid)); err != nil {
		return 0, fmt.Errorf("persist path_uid: %w", err)
	}

	if err := m.persistCounterLocked(ctx); err != nil {
		return 0, err
	}

	m.pathToUID[path] = uid
	m.uidToPath[uid] = path

	return uid, nil
}

// PathForUid returns the path registered for uid, and whether it was found.
func (m *Map) PathForUid(uid node.UID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path, ok := m.uidToPath[uid]

	return path, ok
}

// RemovePath forgets the mapping for path. Idempotent.
func (m *Map) RemovePath(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid, ok := m.pathToUID[path]
	if !ok {
		return nil
	}

	if _, err := m.stmtDeletePath.ExecContext(ctx, m.deviceUID, path); err != nil {
		return fmt.Errorf("delete path_uid: %w", err)
	}

	delete(m.pathToUID, path)
	delete(m.uidToPath, uid)

	return nil
}

// UidForGoogID returns the existing UID for googID, allocating and
// persisting a new one if googID has never been seen on this device.
func (m *Map) UidForGoogID(ctx context.Context, googID string) (node.UID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uid, ok := m.googIDToUID[googID]; ok {
		return uid, nil
	}

	uid := m.allocUIDLocked()

	if _, err := m.stmtInsertGoog.ExecContext(ctx, m.deviceUID, googID, uint64(uid)); err != nil {
		return 0, fmt.Errorf("persist goog_id_uid: %w", err)
	}

	if err := m.persistCounterLocked(ctx); err != nil {
		return 0, err
	}

	m.googIDToUID[googID] = uid
	m.uidToGoogID[uid] = googID

	return uid, nil
}

// GoogIDForUid returns the goog_id registered for uid, and whether it was
// found.
func (m *Map) GoogIDForUid(uid node.UID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	googID, ok := m.uidToGoogID[uid]

	return googID, ok
}

// RemoveGoogID forgets the mapping for googID. Idempotent.
func (m *Map) RemoveGoogID(ctx context.Context, googID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	uid, ok := m.googIDToUID[googID]
	if !ok {
		return nil
	}

	if _, err := m.stmtDeleteGoog.ExecContext(ctx, m.deviceUID, googID); err != nil {
		return fmt.Errorf("delete goog_id_uid: %w", err)
	}

	delete(m.googIDToUID, googID)
	delete(m.uidToGoogID, uid)

	return nil
}

// Allocator adapts a Map to planner.Allocator, so the planner can mint UIDs
// for not-yet-existing destination nodes without knowing how identities are
// actually tracked.
type Allocator struct {
	m *Map
}

// NewAllocator wraps m as a planner.Allocator.
func NewAllocator(m *Map) Allocator {
	return Allocator{m: m}
}

// AllocateUID returns the UID for path, minting one if it hasn't been seen.
func (a Allocator) AllocateUID(ctx context.Context, path string) (node.UID, error) {
	return a.m.UidForPath(ctx, path)
}

func (m *Map) allocUIDLocked() node.UID {
	uid := m.nextUID
	m.nextUID++

	return uid
}

func (m *Map) persistCounterLocked(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx,
		`UPDATE uid_counter SET next_uid = ? WHERE device_uid = ?`, uint64(m.nextUID), m.deviceUID)
	if err != nil {
		return fmt.Errorf("persist uid counter: %w", err)
	}

	return nil
}
