package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/llmdiag/internal/document"
	"github.com/dshills/llmdiag/pkg/types"
)

// Watcher turns file system notifications into save and forget events.
// fsnotify is not recursive, so every directory below the root is watched
// individually and new directories are added as they appear.
type Watcher struct {
	ws *Workspace
	fs *fsnotify.Watcher
}

// Watch installs watches on the workspace tree. Call Run to start
// delivering events and Close when done.
func (w *Workspace) Watch() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	wt := &Watcher{ws: w, fs: fw}
	if err := wt.addTree(w.root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return wt, nil
}

// addTree watches dir and every non-ignored directory below it
func (wt *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != wt.ws.root && wt.ws.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := wt.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// WatchList returns the directories currently watched
func (wt *Watcher) WatchList() []string {
	return wt.fs.WatchList()
}

// Run delivers events until ctx is cancelled or the watcher is closed
func (wt *Watcher) Run(ctx context.Context) error {
	logger := wt.ws.logger
	logger.Info("watching workspace", "root", wt.ws.root, "directories", len(wt.fs.WatchList()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-wt.fs.Events:
			if !ok {
				return nil
			}
			wt.handle(ctx, ev)
		case err, ok := <-wt.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

func (wt *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if wt.ws.ignored(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if _, ok := LanguageID(ev.Name); !ok {
			return
		}
		if err := wt.ws.target.Forget(ctx, types.DocumentID(ev.Name)); err != nil {
			wt.ws.logger.Warn("failed to forget document", "document", ev.Name, "error", err)
		}

	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			wt.createdDir(ctx, ev.Name)
			return
		}
		wt.save(ctx, ev.Name)

	case ev.Has(fsnotify.Write):
		wt.save(ctx, ev.Name)
	}
}

// createdDir watches a new directory and offers the files already inside
// it, which may have been written before the watch was installed.
func (wt *Watcher) createdDir(ctx context.Context, dir string) {
	if err := wt.addTree(dir); err != nil {
		wt.ws.logger.Warn("failed to watch new directory", "dir", dir, "error", err)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && wt.ws.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !wt.ws.ignored(path) {
			wt.save(ctx, path)
		}
		return nil
	})
}

func (wt *Watcher) save(ctx context.Context, path string) {
	ev, ok := wt.ws.event(path)
	if !ok {
		return
	}
	d, err := wt.ws.target.HandleSave(ctx, ev)
	switch {
	case errors.Is(err, document.ErrNotFound):
		// Deleted before we got to it
		wt.ws.logger.Debug("saved file vanished", "document", path)
	case err != nil:
		wt.ws.logger.Warn("failed to handle save", "document", path, "error", err)
	default:
		wt.ws.logger.Debug("save handled", "document", path, "reason", d.Reason)
	}
}

// Close stops the watcher
func (wt *Watcher) Close() error {
	return wt.fs.Close()
}
