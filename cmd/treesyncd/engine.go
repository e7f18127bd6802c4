package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/treesync/internal/backend"
	"github.com/tonimelisma/treesync/internal/cacheregistry"
	"github.com/tonimelisma/treesync/internal/config"
	"github.com/tonimelisma/treesync/internal/contentmeta"
	"github.com/tonimelisma/treesync/internal/events"
	"github.com/tonimelisma/treesync/internal/executor"
	"github.com/tonimelisma/treesync/internal/identifier"
	"github.com/tonimelisma/treesync/internal/ledger"
	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/opgraph"
	"github.com/tonimelisma/treesync/internal/planner"
	"github.com/tonimelisma/treesync/internal/safety"
	"github.com/tonimelisma/treesync/internal/storage"
)

const dbFileName = "treesync.db"

// Engine bundles every subsystem a running daemon or one-shot CLI command
// needs: the shared database, both devices' tree-stores and identifier
// maps, the planner/op-graph/ledger/executor stack, and the backend that
// actually realizes ops. One Engine per process.
type Engine struct {
	Cfg    *config.Config
	Logger *slog.Logger

	DB *storage.DB

	Registry *cacheregistry.Registry

	LocalIDs  *identifier.Map
	RemoteIDs *identifier.Map

	ContentMeta *contentmeta.Manager
	Ledger      *ledger.Ledger
	Graph       *opgraph.Graph
	Dispatcher  *backend.Dispatcher
	RemoteAPI   backend.RemoteClient
	Executor    *executor.Executor
	Bus         *events.Bus
}

// NewEngine opens the shared database and constructs every subsystem
// against it. It does not start the executor — call Executor.Start for that, after
// optionally calling Resume to rehydrate any ops left pending by a crash.
func NewEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dbPath := filepath.Join(cfg.Local.CacheDir, dbFileName)

	db, err := storage.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	bus := events.New(logger)

	registry, err := cacheregistry.New(ctx, db, bus, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading cache registry: %w", err)
	}

	localStore, err := registry.EnsureStore(ctx, node.DeviceLocalDisk)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening local tree-store: %w", err)
	}

	remoteStore, err := registry.EnsureStore(ctx, node.DeviceGDrive)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening remote tree-store: %w", err)
	}

	localIDs, err := identifier.Load(ctx, db, node.DeviceLocalDisk, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading local identifier map: %w", err)
	}

	remoteIDs, err := identifier.Load(ctx, db, node.DeviceGDrive, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading remote identifier map: %w", err)
	}

	contentMeta, err := contentmeta.New(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading content metadata: %w", err)
	}

	led, err := ledger.New(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening op ledger: %w", err)
	}

	remoteAPI := backend.NewFakeRemote(0, logger)

	graph := opgraph.New(func(deviceUID node.DeviceUID, uid node.UID) []node.Node {
		store, ok := registry.GetStoreForDeviceUID(deviceUID)
		if !ok {
			return nil
		}

		return store.ChildrenOf(uid)
	})

	dispatcher := backend.NewDispatcher(localStore, remoteStore, remoteAPI, cfg.Local.RootDir, logger)

	execCfg := executor.Config{
		MaxConcurrentUserOpTasks:    cfg.Workers.MaxConcurrentUserOpTasks,
		MaxConcurrentNonUserOpTasks: cfg.Workers.MaxConcurrentNonUserOpTasks,
	}

	exec := executor.New(execCfg, graph, led, dispatcher, bus, logger)

	return &Engine{
		Cfg:         cfg,
		Logger:      logger,
		DB:          db,
		Registry:    registry,
		LocalIDs:    localIDs,
		RemoteIDs:   remoteIDs,
		ContentMeta: contentMeta,
		Ledger:      led,
		Graph:       graph,
		Dispatcher:  dispatcher,
		RemoteAPI:   remoteAPI,
		Executor:    exec,
		Bus:         bus,
	}, nil
}

// Planner builds a planner.Planner for a drag/deletion gesture between
// srcDevice and dstDevice (which may be the same device for an in-place
// move).
func (e *Engine) Planner(srcDevice, dstDevice node.DeviceUID) (*planner.Planner, error) {
	srcTree, ok := e.Registry.GetStoreForDeviceUID(srcDevice)
	if !ok {
		return nil, fmt.Errorf("no tree-store loaded for source device %d", srcDevice)
	}

	dstTree, ok := e.Registry.GetStoreForDeviceUID(dstDevice)
	if !ok {
		return nil, fmt.Errorf("no tree-store loaded for destination device %d", dstDevice)
	}

	var idMap *identifier.Map
	switch dstDevice {
	case node.DeviceGDrive:
		idMap = e.RemoteIDs
	default:
		idMap = e.LocalIDs
	}

	alloc := identifier.NewAllocator(idMap)

	return planner.New(srcTree, dstTree, alloc, contentmeta.Equal, e.Bus, e.Logger), nil
}

// identifierFor returns the identifier.Map tracking UIDs for deviceUID.
func (e *Engine) identifierFor(deviceUID node.DeviceUID) *identifier.Map {
	if deviceUID == node.DeviceGDrive {
		return e.RemoteIDs
	}

	return e.LocalIDs
}

// ResolveByPath returns the node cached for path on deviceUID, allocating a
// UID for that path first if it has never been seen (the CLI's drag/rm
// commands address nodes by path on either device; the remote side's path
// is a display convenience over its goog_id identity, same pattern the
// identifier package already supports for devices with both).
func (e *Engine) ResolveByPath(ctx context.Context, deviceUID node.DeviceUID, path string) (node.Node, error) {
	idMap := e.identifierFor(deviceUID)

	uid, err := idMap.UidForPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("resolving UID for %q: %w", path, err)
	}

	store, ok := e.Registry.GetStoreForDeviceUID(deviceUID)
	if !ok {
		return nil, fmt.Errorf("no tree-store loaded for device %d", deviceUID)
	}

	n, ok := store.GetNode(uid)
	if !ok {
		return nil, fmt.Errorf("%q is not cached on device %d — run `refresh` first", path, deviceUID)
	}

	return n, nil
}

// SubmitBatch runs the big-batch safety guard against batch, then persists
// every op to the ledger (so a crash mid-run can rehydrate it) and enqueues
// it into the op graph for the executor's P5 worker pool to pick up. force
// overrides a guard violation instead of rejecting the batch.
func (e *Engine) SubmitBatch(ctx context.Context, batch *planner.Batch, force bool) (opgraph.EnqueueResult, error) {
	if err := e.checkBigBatch(batch, force); err != nil {
		return opgraph.EnqueueResult{}, err
	}

	for _, op := range batch.OpList {
		if err := e.Ledger.Persist(ctx, op, int(executor.P5UserOpExecution)); err != nil {
			return opgraph.EnqueueResult{}, fmt.Errorf("persisting op %d: %w", op.OpUID, err)
		}
	}

	result, err := e.Graph.EnqueueBatch(batch.OpList)
	if err != nil {
		return result, err
	}

	e.Logger.Debug("op graph after enqueue", "batch_uid", batch.BatchUID, "graph", e.Graph.DebugString())

	return result, nil
}

// checkBigBatch tallies batch's RM ops per device and runs each device's
// tree through the safety.Checker, so a drag/rm gesture that would remove
// an outsized share of either tree is rejected before anything is
// persisted or enqueued.
func (e *Engine) checkBigBatch(batch *planner.Batch, force bool) error {
	rmCounts := make(map[node.DeviceUID]int)

	for _, op := range batch.OpList {
		if op.Type == planner.OpRM {
			rmCounts[op.SrcNode.GetDeviceUID()]++
		}
	}

	checker := safety.NewChecker(e.Cfg.Safety, e.Logger)

	for deviceUID, count := range rmCounts {
		store, ok := e.Registry.GetStoreForDeviceUID(deviceUID)
		if !ok {
			continue
		}

		if err := checker.CheckBigBatch(store, count, force); err != nil {
			return err
		}
	}

	return nil
}

// Resume rehydrates every PENDING op left in the ledger by a previous
// crash: it resolves each side's current node from the appropriate
// tree-store and re-enqueues the reconstructed op into the op graph, in the
// order it was originally persisted. Ops whose referenced node no longer
// exists in its tree-store are logged and skipped — startup reconciliation
// of such gaps is left to the next full rescan, not to rehydration.
func (e *Engine) Resume(ctx context.Context) error {
	pending, err := e.Ledger.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("loading pending ops: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	e.Logger.Info("resuming pending ops from ledger", slog.Int("count", len(pending)))

	ops := make([]*planner.Op, 0, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	results := make([]*planner.Op, len(pending))

	for i, row := range pending {
		i, row := i, row

		g.Go(func() error {
			op, skip, err := e.rehydrateOp(gctx, row)
			if err != nil {
				return err
			}

			if !skip {
				results[i] = op
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("rehydrating pending ops: %w", err)
	}

	for _, op := range results {
		if op != nil {
			ops = append(ops, op)
		}
	}

	if len(ops) == 0 {
		return nil
	}

	if _, err := e.Graph.EnqueueBatch(ops); err != nil {
		return fmt.Errorf("re-enqueuing rehydrated ops: %w", err)
	}

	return nil
}

func (e *Engine) rehydrateOp(ctx context.Context, row ledger.PendingRow) (op *planner.Op, skip bool, err error) {
	src, dst, err := e.Ledger.SidesFor(ctx, row.OpUID)
	if err != nil {
		return nil, false, fmt.Errorf("loading sides for op %d: %w", row.OpUID, err)
	}

	var srcNode, dstNode node.Node

	if src != nil {
		store, ok := e.Registry.GetStoreForDeviceUID(src.DeviceUID)
		if !ok {
			e.Logger.Warn("skipping rehydration: no store for src device", slog.Uint64("op_uid", row.OpUID))
			return nil, true, nil
		}

		srcNode, ok = store.GetNode(src.UID)
		if !ok {
			e.Logger.Warn("skipping rehydration: src node no longer cached", slog.Uint64("op_uid", row.OpUID), slog.String("path", src.Path))
			return nil, true, nil
		}
	}

	if dst != nil {
		store, ok := e.Registry.GetStoreForDeviceUID(dst.DeviceUID)
		if !ok {
			e.Logger.Warn("skipping rehydration: no store for dst device", slog.Uint64("op_uid", row.OpUID))
			return nil, true, nil
		}

		dstNode, ok = store.GetNode(dst.UID)
		if !ok {
			e.Logger.Warn("skipping rehydration: dst node no longer cached", slog.Uint64("op_uid", row.OpUID), slog.String("path", dst.Path))
			return nil, true, nil
		}
	}

	return &planner.Op{
		OpUID:    row.OpUID,
		BatchUID: row.BatchUID,
		Type:     row.OpType,
		SrcNode:  srcNode,
		DstNode:  dstNode,
	}, false, nil
}

// drainPollInterval is how often a one-shot command polls the ledger while
// waiting for its own submitted batch to finish draining.
const drainPollInterval = 50 * time.Millisecond

// RunBatchToCompletion submits batch (subject to the big-batch safety
// guard, overridden by force), starts the executor long enough to drain
// exactly that batch's ops, and stops it again — the one-shot CLI
// commands' substitute for a persistent daemon: no IPC protocol, just a
// short-lived in-process executor bounded to the ops it just enqueued.
func (e *Engine) RunBatchToCompletion(ctx context.Context, batch *planner.Batch, force bool) error {
	if len(batch.OpList) == 0 {
		return nil
	}

	if _, err := e.SubmitBatch(ctx, batch, force); err != nil {
		return err
	}

	e.Executor.Start(ctx)
	defer e.Executor.Shutdown()

	pending := make(map[uint64]struct{}, len(batch.OpList))
	for _, op := range batch.OpList {
		pending[op.OpUID] = struct{}{}
	}

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for uid := range pending {
				status, err := e.Ledger.StatusOf(ctx, uid)
				if err != nil {
					return fmt.Errorf("polling op %d status: %w", uid, err)
				}

				switch status {
				case ledger.StatusCompletedOK, ledger.StatusCompletedNoOp, ledger.StatusStoppedOnError:
					delete(pending, uid)
				}
			}
		}
	}

	return nil
}

// Close shuts down the executor (if started) and releases every resource
// NewEngine opened, aggregating failures across subsystems.
func (e *Engine) Close() error {
	if e.Executor != nil {
		e.Executor.Shutdown()
	}

	var err error

	if closeErr := e.Registry.Close(); closeErr != nil {
		err = fmt.Errorf("closing cache registry: %w", closeErr)
	}

	if closeErr := e.DB.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("closing database: %w", closeErr)
	} else if closeErr != nil {
		e.Logger.Error("closing database after registry close failure", slog.String("error", closeErr.Error()))
	}

	return err
}
