package scenario

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback is called once per scenario after a burst of file changes
// settles. kind is "updated" or "deleted".
type ChangeCallback func(id, kind string)

const debounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on siteRoot/Dir and reports scenario
// changes until ctx is cancelled. New scenario directories are added to the
// watch list as they appear.
func Watch(ctx context.Context, siteRoot string, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Join(siteRoot, filepath.FromSlash(Dir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := addDirsRecursive(w, dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", dir))

	// Changes are collected per scenario and flushed after the debounce.
	pending := make(map[string]string)
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func(id, kind string) {
		if prev, ok := pending[id]; !ok || prev != "deleted" || kind == "deleted" {
			pending[id] = kind
		}
		if flushTimer == nil {
			flushTimer = time.NewTimer(debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for id, kind := range pending {
				logger.Debug("watcher: scenario changed", slog.String("scenario", id), slog.String("op", kind))
				if cb != nil {
					cb(id, kind)
				}
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
				}
			}

			rel, relErr := filepath.Rel(dir, absPath)
			if relErr != nil || rel == "." || strings.HasPrefix(rel, "..") {
				continue
			}
			rel = filepath.ToSlash(rel)
			if strings.HasPrefix(filepath.Base(rel), ".codebook-tmp-") {
				continue
			}
			id, _, _ := strings.Cut(rel, "/")

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(id, "updated")
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if rel == id {
					schedule(id, "deleted")
				} else {
					schedule(id, "updated")
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
