package main

import (
	"context"
	"fmt"
	"path"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/treesync/internal/backend"
	"github.com/tonimelisma/treesync/internal/cacheregistry"
	"github.com/tonimelisma/treesync/internal/contentmeta"
	"github.com/tonimelisma/treesync/internal/node"
)

// refreshMaxConcurrentFetches bounds how many ListChildren calls a
// --recursive refresh has in flight at once — a flat constant rather than a
// config knob, since this is a CLI convenience, not a tuning surface.
const refreshMaxConcurrentFetches = 4

func newRefreshCmd() *cobra.Command {
	var (
		flagRecursive bool
	)

	cmd := &cobra.Command{
		Use:   "refresh [remote-path]",
		Short: "Fetch a remote subtree's children into the local cache",
		Long: `Fetch the children of a Google Drive folder and cache them, so
subsequent drag/rm commands can resolve paths under it. Defaults to the
drive root. With --recursive, fetches every descendant folder too, bounded
to a handful of concurrent requests.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remotePath := "/"
			if len(args) > 0 {
				remotePath = args[0]
			}

			return runRefresh(cmd.Context(), mustCLIContext(cmd.Context()), remotePath, flagRecursive)
		},
	}

	cmd.Flags().BoolVarP(&flagRecursive, "recursive", "r", false, "fetch every descendant folder too")

	return cmd
}

func runRefresh(ctx context.Context, cc *CLIContext, remotePath string, recursive bool) error {
	engine, err := NewEngine(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if _, ok := engine.Registry.GetStoreForDeviceUID(node.DeviceGDrive); !ok {
		return fmt.Errorf("no remote tree-store loaded")
	}

	rootUID, rootGoogID, err := ensureRemoteRoot(ctx, engine, remotePath)
	if err != nil {
		return err
	}

	sem := semaphore.NewWeighted(refreshMaxConcurrentFetches)
	var fetched atomic.Int64

	if err := fetchChildren(ctx, engine, sem, rootGoogID, remotePath, rootUID, recursive, &fetched); err != nil {
		return err
	}

	if err := engine.Registry.RegisterCache(ctx, cacheregistry.Info{
		DeviceUID:   node.DeviceGDrive,
		SubtreeRoot: remotePath,
		SubtreeUID:  rootUID,
		IsLoaded:    true,
		IsComplete:  recursive,
		SyncTS:      time.Now().UnixNano(),
	}); err != nil {
		return fmt.Errorf("registering cache: %w", err)
	}

	cc.Statusf("fetched %d nodes under %s\n", fetched.Load(), remotePath)

	return nil
}

// ensureRemoteRoot resolves (allocating if necessary) the UID for
// remotePath and, when it names an already-cached node, its GoogID. The
// drive root itself has no GoogID — ListChildren("") means "top level".
func ensureRemoteRoot(ctx context.Context, e *Engine, remotePath string) (node.UID, string, error) {
	uid, err := e.RemoteIDs.UidForPath(ctx, remotePath)
	if err != nil {
		return 0, "", fmt.Errorf("resolving UID for %q: %w", remotePath, err)
	}

	if remotePath == "/" {
		return uid, "", nil
	}

	googID, ok := e.RemoteIDs.GoogIDForUid(uid)
	if !ok {
		return 0, "", fmt.Errorf("%q is not cached — refresh its parent first", remotePath)
	}

	return uid, googID, nil
}

// fetchChildren lists remotePath's children, caches each as a node, and
// (when recursive) fans out one bounded fetch per child folder.
func fetchChildren(ctx context.Context, e *Engine, sem *semaphore.Weighted, parentGoogID, parentPath string,
	parentUID node.UID, recursive bool, fetched *atomic.Int64) error {
	children, err := e.RemoteAPI.ListChildren(ctx, parentGoogID)
	if err != nil {
		return fmt.Errorf("listing children of %q: %w", parentPath, err)
	}

	store, ok := e.Registry.GetStoreForDeviceUID(node.DeviceGDrive)
	if !ok {
		return fmt.Errorf("no remote tree-store loaded")
	}

	childDirs := make(map[node.UID]struct{ googID, path string })

	for _, rn := range children {
		childUID, err := e.RemoteIDs.UidForGoogID(ctx, rn.GoogID)
		if err != nil {
			return fmt.Errorf("allocating UID for %q: %w", rn.GoogID, err)
		}

		childPath := path.Join(parentPath, rn.Name)

		n, err := buildRemoteNode(ctx, rn, childUID, parentUID, childPath, e.ContentMeta)
		if err != nil {
			return err
		}

		if err := store.Upsert(ctx, n); err != nil {
			return fmt.Errorf("caching %q: %w", childPath, err)
		}

		fetched.Add(1)

		if recursive && rn.IsFolder {
			childDirs[childUID] = struct{ googID, path string }{rn.GoogID, childPath}
		}
	}

	if !recursive || len(childDirs) == 0 {
		return nil
	}

	errCh := make(chan error, len(childDirs))

	for uid, info := range childDirs {
		uid, info := uid, info

		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquiring fetch slot: %w", err)
		}

		go func() {
			defer sem.Release(1)
			errCh <- fetchChildren(ctx, e, sem, info.googID, info.path, uid, recursive, fetched)
		}()
	}

	for range childDirs {
		if err := <-errCh; err != nil {
			return err
		}
	}

	return nil
}

func buildRemoteNode(ctx context.Context, rn backend.RemoteNode, uid, parentUID node.UID, fullPath string, cm *contentmeta.Manager) (node.Node, error) {
	base := node.BaseNode{
		UID:        uid,
		DeviceUID:  node.DeviceGDrive,
		Name:       rn.Name,
		ParentUIDs: []node.UID{parentUID},
		GoogID:     rn.GoogID,
		IsLive:     true,
		ModifyTS:   rn.ModifiedTS.UnixNano(),
		PathList:   []string{fullPath},
	}

	if rn.Trashed {
		base.Trashed = node.ExplicitlyTrashed
	}

	if rn.IsFolder {
		base.Kind = node.KindGDriveFolder

		return &node.GDriveFolderNode{BaseNode: base}, nil
	}

	base.Kind = node.KindGDriveFile

	contentUID, err := cm.Intern(ctx, contentmeta.Meta{Size: rn.Size, MD5: rn.MD5})
	if err != nil {
		return nil, fmt.Errorf("interning content meta for %q: %w", fullPath, err)
	}

	base.ContentUID = contentUID

	return &node.GDriveFileNode{BaseNode: base, Size: rn.Size}, nil
}
