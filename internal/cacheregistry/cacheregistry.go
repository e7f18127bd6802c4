// Package cacheregistry catalogs which subtrees of the local disk and
// GDrive have been loaded into a treestore.Store, consolidates overlapping
// cache registrations at startup, and owns construction of the three
// singleton devices (super-root, local disk, GDrive).
package cacheregistry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/tonimelisma/treesync/internal/events"
	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/storage"
	"github.com/tonimelisma/treesync/internal/treestore"
)

// Info describes one registered subtree cache.
type Info struct {
	DeviceUID   node.DeviceUID
	SubtreeRoot string
	SubtreeUID  node.UID
	IsLoaded    bool
	IsComplete  bool
	SyncTS      int64
}

// Registry is the catalog of known caches plus the live stores backing
// them. One Registry per process.
type Registry struct {
	mu sync.RWMutex

	// byDevice[deviceUID][subtreeRoot] = Info
	byDevice map[node.DeviceUID]map[string]Info
	stores   map[node.DeviceUID]*treestore.Store

	db     *storage.DB
	bus    *events.Bus
	logger *slog.Logger

	stmtUpsert *sql.Stmt
	stmtDelete *sql.Stmt
}

// New constructs a Registry and loads its catalog from disk. It does not by
// itself open any treestore.Store — call EnsureStore for each device that
// needs one.
func New(ctx context.Context, db *storage.DB, bus *events.Bus, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		byDevice: make(map[node.DeviceUID]map[string]Info),
		stores:   make(map[node.DeviceUID]*treestore.Store),
		db:       db,
		bus:      bus,
		logger:   logger,
	}

	if err := storage.PrepareAll(ctx, db.Conn, []storage.StmtDef{
		{Dest: &r.stmtUpsert, SQL: `INSERT INTO cache_info (device_uid, subtree_root, subtree_uid, is_loaded, is_complete, sync_ts)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(device_uid, subtree_root) DO UPDATE SET
				subtree_uid = excluded.subtree_uid,
				is_loaded   = excluded.is_loaded,
				is_complete = excluded.is_complete,
				sync_ts     = excluded.sync_ts`, Name: "upsertCacheInfo"},
		{Dest: &r.stmtDelete, SQL: `DELETE FROM cache_info WHERE device_uid = ? AND subtree_root = ?`, Name: "deleteCacheInfo"},
	}); err != nil {
		return nil, err
	}

	if err := r.load(ctx); err != nil {
		return nil, err
	}

	if err := r.consolidate(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) load(ctx context.Context) error {
	rows, err := r.db.Conn.QueryContext(ctx,
		`SELECT device_uid, subtree_root, subtree_uid, is_loaded, is_complete, sync_ts FROM cache_info`)
	if err != nil {
		return fmt.Errorf("query cache_info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			deviceUID  uint32
			root       string
			subtreeUID uint64
			isLoaded   bool
			isComplete bool
			syncTS     int64
		)

		if err := rows.Scan(&deviceUID, &root, &subtreeUID, &isLoaded, &isComplete, &syncTS); err != nil {
			return fmt.Errorf("scan cache_info row: %w", err)
		}

		dev := node.DeviceUID(deviceUID)

		if r.byDevice[dev] == nil {
			r.byDevice[dev] = make(map[string]Info)
		}

		r.byDevice[dev][root] = Info{
			DeviceUID: dev, SubtreeRoot: root, SubtreeUID: node.UID(subtreeUID),
			IsLoaded: isLoaded, IsComplete: isComplete, SyncTS: syncTS,
		}
	}

	return rows.Err()
}

// consolidate drops any cache registration whose subtree_root is a strict
// descendant of another registration's subtree_root for the same device —
// the shallower cache already covers it. The ancestor is kept whatever the
// two entries' SyncTS; the dropped entry's nodes are not merged into it.
func (r *Registry) consolidate(ctx context.Context) error {
	for dev, infos := range r.byDevice {
		roots := make([]string, 0, len(infos))
		for root := range infos {
			roots = append(roots, root)
		}

		for _, candidate := range roots {
			for _, other := range roots {
				if candidate == other {
					continue
				}

				if isStrictDescendant(candidate, other) {
					r.logger.Info("dropping redundant cache registration",
						slog.Int("device_uid", int(dev)),
						slog.String("subtree_root", candidate),
						slog.String("covered_by", other),
					)

					if _, err := r.stmtDelete.ExecContext(ctx, dev, candidate); err != nil {
						return fmt.Errorf("delete redundant cache_info: %w", err)
					}

					delete(infos, candidate)

					break
				}
			}
		}
	}

	return nil
}

// isStrictDescendant reports whether child is a path strictly beneath
// ancestor ("/a/b" is a descendant of "/a", but "/a" is not a descendant of
// itself).
func isStrictDescendant(child, ancestor string) bool {
	if child == ancestor {
		return false
	}

	prefix := strings.TrimSuffix(ancestor, "/") + "/"

	return strings.HasPrefix(child, prefix)
}

// RegisterCache records (or updates) a subtree cache registration.
func (r *Registry) RegisterCache(ctx context.Context, info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.stmtUpsert.ExecContext(ctx, info.DeviceUID, info.SubtreeRoot, uint64(info.SubtreeUID),
		info.IsLoaded, info.IsComplete, info.SyncTS); err != nil {
		return fmt.Errorf("persist cache_info: %w", err)
	}

	if r.byDevice[info.DeviceUID] == nil {
		r.byDevice[info.DeviceUID] = make(map[string]Info)
	}

	r.byDevice[info.DeviceUID][info.SubtreeRoot] = info

	if r.bus != nil {
		r.bus.Publish(events.DeviceUpserted, nil)
	}

	return nil
}

// EnsureStore returns the treestore.Store for deviceUID, opening it on
// first use.
func (r *Registry) EnsureStore(ctx context.Context, deviceUID node.DeviceUID) (*treestore.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[deviceUID]; ok {
		return s, nil
	}

	s, err := treestore.New(ctx, r.db, deviceUID, r.bus, r.logger)
	if err != nil {
		return nil, err
	}

	r.stores[deviceUID] = s

	return s, nil
}

// GetStoreForDeviceUID returns the already-opened store for deviceUID, or
// false if EnsureStore has not been called for it yet.
func (r *Registry) GetStoreForDeviceUID(deviceUID node.DeviceUID) (*treestore.Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stores[deviceUID]

	return s, ok
}

// CachesForDevice returns every registered cache Info for a device.
func (r *Registry) CachesForDevice(deviceUID node.DeviceUID) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.byDevice[deviceUID]))
	for _, info := range r.byDevice[deviceUID] {
		infos = append(infos, info)
	}

	return infos
}

// EnsureCachesLoadedForNodes reports which of the requested ancestor paths
// already have a cache registration covering them on the given device — the
// caller uses the result to decide which ancestors still need a fresh scan.
func (r *Registry) EnsureCachesLoadedForNodes(deviceUID node.DeviceUID, paths []string) (covered, missing []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := r.byDevice[deviceUID]

	for _, p := range paths {
		found := false

		for root, info := range infos {
			if !info.IsLoaded {
				continue
			}

			if p == root || isStrictDescendant(p, root) {
				found = true
				break
			}
		}

		if found {
			covered = append(covered, p)
		} else {
			missing = append(missing, p)
		}
	}

	return covered, missing
}

// Close finalizes the registry's own prepared statements and every
// treestore.Store it has opened, aggregating failures across all of them
// rather than stopping at the first.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error

	for deviceUID, s := range r.stores {
		if closeErr := s.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close store for device %d: %w", deviceUID, closeErr))
		}
	}

	for _, stmt := range []*sql.Stmt{r.stmtUpsert, r.stmtDelete} {
		if stmt == nil {
			continue
		}

		err = multierr.Append(err, stmt.Close())
	}

	return err
}
