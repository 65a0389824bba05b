package fsmonitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/fstrackd/internal/index"
)

const (
	errBackoffInit = 1 * time.Second
	errBackoffMax  = 30 * time.Second
	errBackoffMult = 2
)

// runProducer is the select loop over the shared watcher's event and error
// channels. It never holds c.mu across a consumer callback invocation: the
// lock is held while the owning root is resolved, the target is stat'ed, a
// directory watch is added or removed, and the pending buffers are appended
// to, and it is released before the consumer is called.
func (c *Core) runProducer(ctx context.Context) {
	backoff := errBackoffInit

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-c.watcher.Events():
			if !ok {
				return
			}

			c.handleKernelEvent(ev)
			backoff = errBackoffInit

		case err, ok := <-c.watcher.Errors():
			if !ok {
				return
			}

			c.logger.Warn("watcher error, treating as dropped events",
				slog.String("error", err.Error()), slog.Duration("backoff", backoff))

			c.dispatchDroppedEvents()

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}

			backoff *= errBackoffMult
			if backoff > errBackoffMax {
				backoff = errBackoffMax
			}
		}
	}
}

// handleKernelEvent implements the per-event translation described in
// spec.md §4.D: drop events under an ignored prefix, resolve the owning
// monitored root, classify the kernel op, stat the target to distinguish a
// file from a directory, buffer the mutation, and dispatch.
func (c *Core) handleKernelEvent(ev fsnotify.Event) {
	parentDir := filepath.Dir(ev.Name)

	if c.isIgnored(parentDir) || c.isIgnored(ev.Name) {
		return
	}

	c.mu.Lock()
	root, found := c.resolveRoot(ev.Name)
	if !found {
		c.mu.Unlock()
		return
	}

	mp := c.paths[root]

	if mp.root == ev.Name && ev.Has(fsnotify.Rename) {
		c.mu.Unlock()
		c.dispatchMonitoredDirMoved(mp)
		return
	}

	kind, ok := classify(ev.Op)
	if !ok {
		c.mu.Unlock()
		return
	}

	if !mp.mask.Subscribes(kind) {
		c.mu.Unlock()
		return
	}

	path := c.codec.Decode(ev.Name)
	parent := c.codec.Decode(parentDir)
	name := filepath.Base(path)

	if kind == Deleted {
		c.pendingDeleted = append(c.pendingDeleted, pendingDelete{
			root: root,
			key:  index.Key{Parent: parent, Name: name},
		})
	} else {
		mtime, isDir, ok := c.statMtime(ev.Name)
		if !ok {
			c.logger.Debug("stat failed on live event, dropping",
				slog.String("path", ev.Name), slog.String("kind", kind.String()))
			c.mu.Unlock()

			return
		}

		if isDir && kind == Created {
			if err := c.watcher.Add(ev.Name); err != nil {
				c.logger.Warn("failed to add watch on new directory",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			} else {
				mp.watchedDirs[ev.Name] = true
			}
		}

		row := index.Row{Root: root, Parent: parent, Name: name, Mtime: mtime}

		if kind == Created {
			c.pendingCreated = append(c.pendingCreated, row)
		} else {
			c.pendingModified = append(c.pendingModified, row)
		}
	}

	if kind == Deleted && mp.watchedDirs[ev.Name] {
		_ = c.watcher.Remove(ev.Name) //nolint:errcheck
		delete(mp.watchedDirs, ev.Name)
	}

	c.mu.Unlock()

	c.consumer(Event{MonitoredRoot: root, Path: path, Kind: kind, SourceTag: "live"})
}

// statMtime stats path and returns its mtime (seconds) and whether it is a
// directory. The third return value is false if the stat itself failed (the
// entry disappeared between the kernel event and this call) — per spec.md
// §7's error table, a stat failure on a live event is logged and the event
// is dropped entirely rather than faked as a directory row.
func (c *Core) statMtime(path string) (int64, bool, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false, false
	}

	if info.IsDir() {
		return index.DirMtime, true, true
	}

	return info.ModTime().Unix(), false, true
}

func (c *Core) dispatchMonitoredDirMoved(mp *monitoredPath) {
	if !mp.mask.Subscribes(MonitoredDirMoved) {
		return
	}

	c.consumer(Event{MonitoredRoot: mp.root, Path: mp.root, Kind: MonitoredDirMoved, SourceTag: "live"})
}

// dispatchDroppedEvents notifies every active monitored root that the
// kernel watch may have missed activity — a watcher error (most commonly a
// queue overflow) is not scoped to one root, so every consumer that
// subscribed to DROPPED_EVENTS is told to fall back to a full reconcile.
func (c *Core) dispatchDroppedEvents() {
	c.mu.Lock()
	roots := make([]*monitoredPath, 0, len(c.paths))
	for _, mp := range c.paths {
		if mp.state == stateActive && mp.mask.Subscribes(DroppedEvents) {
			roots = append(roots, mp)
		}
	}
	c.mu.Unlock()

	for _, mp := range roots {
		c.consumer(Event{MonitoredRoot: mp.root, Path: mp.root, Kind: DroppedEvents, SourceTag: "live"})
	}
}
