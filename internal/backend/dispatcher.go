package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/treesync/internal/node"
	"github.com/tonimelisma/treesync/internal/planner"
	"github.com/tonimelisma/treesync/internal/treestore"
)

// Dispatcher realizes planner.Op values against the local filesystem and a
// RemoteClient, and keeps each side's tree-store in sync with the result.
// It implements executor.Commander without importing internal/executor,
// keeping the dependency direction backend -> (nothing executor-specific).
type Dispatcher struct {
	local     *treestore.Store
	remote    *treestore.Store
	remoteAPI RemoteClient
	localRoot string
	logger    *slog.Logger
}

// NewDispatcher constructs a Dispatcher. localRoot is the filesystem path
// the local device's root node maps to.
func NewDispatcher(local, remote *treestore.Store, remoteAPI RemoteClient, localRoot string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{local: local, remote: remote, remoteAPI: remoteAPI, localRoot: localRoot, logger: logger}
}

// Execute realizes op. Errors wrapping ErrTransient/ErrSkippable steer the
// executor's retry and no-op handling; any other error is fatal to op's
// batch.
func (d *Dispatcher) Execute(ctx context.Context, op *planner.Op) error {
	switch op.Type {
	case planner.OpRM:
		return d.execRM(ctx, op)
	case planner.OpMKDIR, planner.OpStartDirCP, planner.OpStartDirMV:
		return d.execMkdir(ctx, op)
	case planner.OpFinishDirCP, planner.OpFinishDirMV:
		return d.execFinishDir(ctx, op)
	case planner.OpCP, planner.OpCPOnto:
		return d.execCopy(ctx, op, false)
	case planner.OpMV, planner.OpMVOnto:
		return d.execCopy(ctx, op, true)
	default:
		return fmt.Errorf("backend: unhandled op type %q", op.Type)
	}
}

func isRemote(n node.Node) bool { return n.GetKind().IsGDrive() }

func googIDOf(n node.Node) string {
	var id string
	node.MutateBase(n, func(b *node.BaseNode) { id = b.GoogID })

	return id
}

func localPathOf(n node.Node) string {
	if paths := n.GetPathList(); len(paths) > 0 {
		return paths[0]
	}

	return ""
}

func (d *Dispatcher) execRM(ctx context.Context, op *planner.Op) error {
	n := op.SrcNode

	if isRemote(n) {
		if err := d.remoteAPI.Delete(ctx, googIDOf(n)); err != nil {
			return fmt.Errorf("backend: remote delete %s: %w", n.GetName(), err)
		}

		return d.remove(ctx, d.remote, n)
	}

	path := localPathOf(n)

	err := os.RemoveAll(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backend: local remove %s: %w", path, err)
	}

	return d.remove(ctx, d.local, n)
}

func (d *Dispatcher) execMkdir(ctx context.Context, op *planner.Op) error {
	dst := op.DstNode

	if isRemote(dst) {
		parentGoogID := d.parentGoogID(dst)

		remoteNode, err := d.remoteAPI.CreateFolder(ctx, parentGoogID, dst.GetName())
		if err != nil {
			return fmt.Errorf("backend: create remote folder %s: %w", dst.GetName(), err)
		}

		node.MutateBase(dst, func(b *node.BaseNode) { b.GoogID = remoteNode.GoogID; b.IsLive = true })

		return d.upsert(ctx, d.remote, dst)
	}

	path := localPathOf(dst)
	if path == "" {
		return fmt.Errorf("backend: %w: destination directory has no path", planner.ErrInvalidBatch)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("backend: mkdir %s: %w", path, err)
	}

	node.MutateBase(dst, func(b *node.BaseNode) { b.IsLive = true })

	return d.upsert(ctx, d.local, dst)
}

// execFinishDir marks a directory created earlier by a START_DIR op as
// fully populated; every descendant op has already run by the time the op
// graph makes this one ready (see internal/opgraph's FINISH_DIR ordering).
func (d *Dispatcher) execFinishDir(ctx context.Context, op *planner.Op) error {
	dst := op.DstNode

	store := d.local
	if isRemote(dst) {
		store = d.remote
	}

	node.MutateBase(dst, func(b *node.BaseNode) { b.AllChildren = true })

	return d.upsert(ctx, store, dst)
}

func (d *Dispatcher) execCopy(ctx context.Context, op *planner.Op, deleteSrc bool) error {
	src, dst := op.SrcNode, op.DstNode

	var err error

	switch {
	case !isRemote(src) && isRemote(dst):
		err = d.uploadFile(ctx, src, dst)
	case isRemote(src) && !isRemote(dst):
		err = d.downloadFile(ctx, src, dst)
	case !isRemote(src) && !isRemote(dst):
		err = d.copyLocalFile(src, dst)
	default:
		err = d.copyRemoteFile(ctx, src, dst)
	}

	if err != nil {
		return err
	}

	if deleteSrc {
		return d.execRM(ctx, &planner.Op{OpUID: op.OpUID, Type: planner.OpRM, SrcNode: src})
	}

	return nil
}

func (d *Dispatcher) uploadFile(ctx context.Context, src, dst node.Node) error {
	f, err := os.Open(localPathOf(src))
	if err != nil {
		return fmt.Errorf("backend: open %s for upload: %w", localPathOf(src), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("backend: stat %s: %w", localPathOf(src), err)
	}

	remoteNode, err := d.remoteAPI.Upload(ctx, d.parentGoogID(dst), dst.GetName(), f, info.Size())
	if err != nil {
		return fmt.Errorf("backend: upload %s: %w", dst.GetName(), err)
	}

	node.MutateBase(dst, func(b *node.BaseNode) { b.GoogID = remoteNode.GoogID; b.IsLive = true })

	return d.upsert(ctx, d.remote, dst)
}

func (d *Dispatcher) downloadFile(ctx context.Context, src, dst node.Node) error {
	path := localPathOf(dst)
	if path == "" {
		return fmt.Errorf("backend: %w: download destination has no path", planner.ErrInvalidBatch)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("backend: mkdir parent of %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("backend: create %s: %w", path, err)
	}
	defer f.Close()

	if err := d.remoteAPI.Download(ctx, googIDOf(src), f); err != nil {
		return fmt.Errorf("backend: download %s: %w", src.GetName(), err)
	}

	node.MutateBase(dst, func(b *node.BaseNode) { b.IsLive = true })

	return d.upsert(ctx, d.local, dst)
}

func (d *Dispatcher) copyLocalFile(src, dst node.Node) error {
	srcPath, dstPath := localPathOf(src), localPathOf(dst)

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("backend: read %s: %w", srcPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("backend: mkdir parent of %s: %w", dstPath, err)
	}

	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return fmt.Errorf("backend: write %s: %w", dstPath, err)
	}

	node.MutateBase(dst, func(b *node.BaseNode) { b.IsLive = true })

	return d.upsert(context.Background(), d.local, dst)
}

func (d *Dispatcher) copyRemoteFile(ctx context.Context, src, dst node.Node) error {
	var buf bytes.Buffer

	if err := d.remoteAPI.Download(ctx, googIDOf(src), &buf); err != nil {
		return fmt.Errorf("backend: download %s for remote-to-remote copy: %w", src.GetName(), err)
	}

	remoteNode, err := d.remoteAPI.Upload(ctx, d.parentGoogID(dst), dst.GetName(), io.NopCloser(&buf), int64(buf.Len()))
	if err != nil {
		return fmt.Errorf("backend: upload %s for remote-to-remote copy: %w", dst.GetName(), err)
	}

	node.MutateBase(dst, func(b *node.BaseNode) { b.GoogID = remoteNode.GoogID; b.IsLive = true })

	return d.upsert(ctx, d.remote, dst)
}

func (d *Dispatcher) parentGoogID(n node.Node) string {
	parents := n.GetParentUIDs()
	if len(parents) == 0 {
		return ""
	}

	parentNode, ok := d.remote.GetNode(parents[0])
	if !ok {
		return ""
	}

	return googIDOf(parentNode)
}

func (d *Dispatcher) upsert(ctx context.Context, store *treestore.Store, n node.Node) error {
	if err := store.Upsert(ctx, n); err != nil {
		return fmt.Errorf("backend: upsert %s into tree-store: %w", n.GetName(), err)
	}

	return nil
}

func (d *Dispatcher) remove(ctx context.Context, store *treestore.Store, n node.Node) error {
	if err := store.Remove(ctx, n.GetUID()); err != nil {
		return fmt.Errorf("backend: remove %s from tree-store: %w", n.GetName(), err)
	}

	return nil
}
