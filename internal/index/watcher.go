package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// reconcileDelay debounces the sync pass that follows a rename.
const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change with the
// event kind and the affected note id.
type EventCallback func(kind string, id string)

// Watch starts an fsnotify watcher on the output directory and keeps the
// catalog current until ctx is cancelled. Notes live in a flat directory,
// so subdirectories are not watched. Rename events trigger a debounced
// Sync that removes stale rows and picks up the new name.
func (c *Catalog) Watch(ctx context.Context, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := c.store.Root()
	if err := w.Add(root); err != nil {
		return err
	}
	c.logger.Info("watcher: started", slog.String("root", root))

	var (
		reconcileTimer *time.Timer
		reconcileCh    <-chan time.Time
	)
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			c.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			c.reconcile(ctx, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			c.handle(ev, cb, scheduleReconcile)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (c *Catalog) handle(ev fsnotify.Event, cb EventCallback, scheduleReconcile func()) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return
	}
	id, ok := c.store.IDFromPath(name)
	if !ok {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		info, err := os.Stat(ev.Name)
		if err != nil || !info.Mode().IsRegular() {
			return
		}
		data, err := os.ReadFile(ev.Name)
		if err != nil {
			c.logger.Warn("watcher: read failed", slog.String("id", string(id)), slog.String("error", err.Error()))
			return
		}
		if err := c.IndexFile(name, data, info.ModTime()); err != nil {
			c.logger.Warn("watcher: index failed", slog.String("id", string(id)), slog.String("error", err.Error()))
			return
		}
		kind := EventUpdated
		if ev.Op&fsnotify.Create != 0 {
			kind = EventCreated
		}
		c.logger.Debug("watcher: indexed", slog.String("id", string(id)), slog.String("op", kind))
		notify(cb, kind, string(id))

	case ev.Op&fsnotify.Remove != 0:
		if err := c.db.DeleteNote(string(id)); err != nil {
			c.logger.Warn("watcher: delete failed", slog.String("id", string(id)), slog.String("error", err.Error()))
			return
		}
		c.logger.Debug("watcher: deleted", slog.String("id", string(id)))
		notify(cb, EventDeleted, string(id))

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old name only; the new one arrives as Create.
		if err := c.db.DeleteNote(string(id)); err != nil {
			c.logger.Warn("watcher: rename delete failed", slog.String("id", string(id)), slog.String("error", err.Error()))
		} else {
			notify(cb, EventDeleted, string(id))
		}
		scheduleReconcile()
	}
}

// reconcile runs a Sync and reports rows that appeared or vanished.
func (c *Catalog) reconcile(ctx context.Context, cb EventCallback) {
	before, err := c.db.AllChecksums()
	if err != nil {
		c.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	if err := c.Sync(ctx); err != nil {
		c.logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
		return
	}
	after, err := c.db.AllChecksums()
	if err != nil {
		return
	}
	for id := range before {
		if _, ok := after[id]; !ok {
			notify(cb, EventDeleted, id)
		}
	}
	for id, cs := range after {
		prev, ok := before[id]
		switch {
		case !ok:
			notify(cb, EventCreated, id)
		case prev != cs:
			notify(cb, EventUpdated, id)
		}
	}
}

func notify(cb EventCallback, kind, id string) {
	if cb != nil {
		cb(kind, id)
	}
}
