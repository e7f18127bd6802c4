package backend

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// LocalProducer is the fsnotify-driven stand-in for the out-of-scope full
// local filesystem scanner: it watches a root recursively and reports raw
// create/write/remove/rename events as LocalEvents, leaving classification
// against the tree-store's existing state to the caller.
type LocalProducer struct {
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewLocalProducer constructs a LocalProducer.
func NewLocalProducer(logger *slog.Logger) *LocalProducer {
	if logger == nil {
		logger = slog.Default()
	}

	return &LocalProducer{logger: logger}
}

// Walk visits every entry under root, invoking fn once per entry (including
// root's children, not root itself) exactly as a cold-start full scan
// would, so a caller can reconcile the tree-store before switching to Watch.
func (p *LocalProducer) Walk(ctx context.Context, root string, fn func(LocalEvent) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if path == root {
			return nil
		}

		return fn(LocalEvent{Path: path})
	})
}

// Watch blocks until ctx is canceled, invoking onEvent for every fsnotify
// change under root. New subdirectories are watched as they appear.
func (p *LocalProducer) Watch(ctx context.Context, root string, onEvent func(LocalEvent)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("backend: creating filesystem watcher: %w", err)
	}
	p.watcher = watcher

	if err := addWatchesRecursive(watcher, root); err != nil {
		watcher.Close()
		return fmt.Errorf("backend: adding initial watches under %s: %w", root, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			p.handleEvent(watcher, ev, onEvent)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			p.logger.Warn("backend: filesystem watch error", slog.String("error", err.Error()))
		}
	}
}

func (p *LocalProducer) handleEvent(watcher *fsnotify.Watcher, ev fsnotify.Event, onEvent func(LocalEvent)) {
	removed := ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0

	onEvent(LocalEvent{Path: ev.Name, Removed: removed})

	if !removed && ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if addErr := watcher.Add(ev.Name); addErr != nil {
				p.logger.Warn("backend: failed to add watch", slog.String("path", ev.Name), slog.String("error", addErr.Error()))
			}
		}
	}
}

// Close stops the underlying watcher, if Watch has been called.
func (p *LocalProducer) Close() error {
	if p.watcher == nil {
		return nil
	}

	return p.watcher.Close()
}

func addWatchesRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !d.IsDir() {
			return nil
		}

		return watcher.Add(path)
	})
}
