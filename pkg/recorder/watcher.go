package recorder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch journals create and write events below root and blocks until ctx is
// done. Directories created later are added to the watch. Each event keeps the
// spelling the watcher reported and, when canon is set, the canonical path
// resolved at once, before a later delete or rename can hide it.
func Watch(ctx context.Context, root string, journal *Journal, canon Canonicalizer, logger *zap.Logger) error {
	if journal == nil {
		return fmt.Errorf("journal is not initialized")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "watcher"))

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addWatchRecursive(watcher, absRoot); err != nil {
		watcher.Close()
		return err
	}

	defer watcher.Close()

	logger.Info("watching", zap.String("root", absRoot))
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			handleEvent(watcher, journal, canon, logger, evt)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func handleEvent(watcher *fsnotify.Watcher, journal *Journal, canon Canonicalizer, logger *zap.Logger, evt fsnotify.Event) {
	if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(evt.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if evt.Has(fsnotify.Create) {
			if err := addWatchRecursive(watcher, evt.Name); err != nil {
				logger.Warn("failed to watch new directory", zap.String("path", evt.Name), zap.Error(err))
			}
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	if err := ensureReadable(evt.Name); err != nil {
		logger.Debug("skipping unreadable file", zap.Error(err))
		return
	}
	data, err := os.ReadFile(evt.Name)
	if err != nil {
		logger.Debug("skipping file", zap.String("path", evt.Name), zap.Error(err))
		return
	}

	op := "write"
	if evt.Has(fsnotify.Create) {
		op = "create"
	}
	var canonical string
	if canon != nil {
		expanded, err := canon.Expand(evt.Name)
		if err != nil {
			logger.Debug("leaving canonicalization to the processor", zap.String("path", evt.Name), zap.Error(err))
		} else {
			canonical = expanded
		}
	}
	if err := journal.LogCanonicalEvent(op, evt.Name, canonical, data); err != nil {
		logger.Error("failed to journal event", zap.String("path", evt.Name), zap.Error(err))
	}
}

func addWatchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}
