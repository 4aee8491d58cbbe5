package gpubuild

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"cargogpu/internal/paths"
)

// settle is how long the source tree must stay quiet before a rebuild.
const settle = 200 * time.Millisecond

// watch builds once and then again after every change below the crate's
// src directory. Build failures are logged and do not stop the loop.
func watch(ctx context.Context, j job, deps Deps) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start file watcher: %w", err)
	}
	defer w.Close()

	src := filepath.Join(j.crate, "src")
	if err := addTree(w, src); err != nil {
		return err
	}
	deps.Logger.Info("watching shader crate", "dir", src)

	rebuild := func() {
		if _, err := j.run(ctx, deps); err != nil && ctx.Err() == nil {
			deps.Logger.Error(err, "shader build failed")
		}
	}
	rebuild()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) && paths.IsDir(ev.Name) {
				if err := addTree(w, ev.Name); err != nil {
					deps.Logger.Error(err, "watch new directory", "dir", ev.Name)
				}
			}
			deps.Logger.V(1).Info("source changed", "path", ev.Name, "op", ev.Op.String())
			pending = time.After(settle)
		case <-pending:
			pending = nil
			deps.Logger.Info("shader sources changed, rebuilding")
			rebuild()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			deps.Logger.Error(err, "file watcher")
		}
	}
}

// addTree watches root and every directory below it.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
