package fsmonitor

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tonimelisma/fstrackd/internal/index"
	"github.com/tonimelisma/fstrackd/internal/scanner"
)

// installWatches walks root and adds a kernel watch on every directory not
// excluded by the ignored-prefix set, recording each installed directory on
// mp.watchedDirs. Symlinks are never followed, matching the scanner's walk.
// If adding any watch fails, the watches already added are removed and the
// error is returned.
func (c *Core) installWatches(root string, mp *monitoredPath) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			c.logger.Warn("walk error installing watches",
				slog.String("path", path), slog.String("error", walkErr.Error()))

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return filepath.SkipDir
		}

		if path != root && c.isIgnored(path) {
			return filepath.SkipDir
		}

		if err := c.watcher.Add(path); err != nil {
			for dir := range mp.watchedDirs {
				_ = c.watcher.Remove(dir) //nolint:errcheck
			}

			return fmt.Errorf("fsmonitor: adding watch on %s: %w", path, err)
		}

		mp.watchedDirs[path] = true

		return nil
	})
}

// reconcile brings root's Shadow Index state in line with the live
// filesystem and returns the scan or index error, if any. In persistent mode it
// runs a diff scan and synthesizes events for every change that accumulated
// while the process was not running, before any live event for root is
// dispatched. In non-persistent mode it seeds the index with a one-time
// initial scan and emits no synthetic events.
func (c *Core) reconcile(ctx context.Context, mp *monitoredPath) error {
	if mp.persistent {
		return c.reconcilePersistent(ctx, mp)
	}

	return c.reconcileNonPersistent(ctx, mp)
}

func (c *Core) reconcileNonPersistent(ctx context.Context, mp *monitoredPath) error {
	if err := c.scan.InitialScan(ctx, mp.root); err != nil {
		return fmt.Errorf("fsmonitor: initial scan of %s: %w", mp.root, err)
	}

	c.logger.Info("non-persistent reconciliation complete (no synthetic events)",
		slog.String("root", mp.root))

	return nil
}

func (c *Core) reconcilePersistent(ctx context.Context, mp *monitoredPath) error {
	empty, err := c.idx.IsEmpty(ctx, mp.root)
	if err != nil {
		return fmt.Errorf("fsmonitor: checking index for %s: %w", mp.root, err)
	}

	if empty {
		if err := c.scan.InitialScan(ctx, mp.root); err != nil {
			return fmt.Errorf("fsmonitor: seeding index for %s: %w", mp.root, err)
		}

		c.logger.Info("persistent reconciliation seeded empty index, no synthetic events",
			slog.String("root", mp.root))

		return nil
	}

	delta, err := c.scan.DiffScan(ctx, mp.root)
	if err != nil {
		return fmt.Errorf("fsmonitor: diff scan of %s: %w", mp.root, err)
	}

	if delta.Empty() {
		c.logger.Info("persistent reconciliation found no offline changes",
			slog.String("root", mp.root))

		return nil
	}

	correlationID := uuid.NewString()

	if err := c.applyAndDispatchDelta(ctx, mp, delta, correlationID); err != nil {
		return err
	}

	c.logger.Info("persistent reconciliation applied offline changes",
		slog.String("root", mp.root),
		slog.String("correlation_id", correlationID),
		slog.Int("created", len(delta.Created)),
		slog.Int("modified", len(delta.Modified)),
		slog.Int("deleted", len(delta.Deleted)),
	)

	return nil
}

// applyAndDispatchDelta commits a reconciliation delta to the Shadow Index
// and dispatches one synthetic event per changed entry, all tagged with the
// same reconciliation correlation id so a consumer can group them.
func (c *Core) applyAndDispatchDelta(ctx context.Context, mp *monitoredPath, delta scanner.Delta, correlationID string) error {
	if err := c.idx.AddFiles(ctx, delta.Created); err != nil {
		return fmt.Errorf("fsmonitor: applying created rows for %s: %w", mp.root, err)
	}

	if err := c.idx.UpdateFiles(ctx, delta.Modified); err != nil {
		return fmt.Errorf("fsmonitor: applying modified rows for %s: %w", mp.root, err)
	}

	deletedKeys := make([]index.Key, 0, len(delta.Deleted))
	for _, r := range delta.Deleted {
		deletedKeys = append(deletedKeys, index.Key{Parent: r.Parent, Name: r.Name})
	}

	if err := c.idx.DeleteFiles(ctx, mp.root, deletedKeys); err != nil {
		return fmt.Errorf("fsmonitor: applying deleted rows for %s: %w", mp.root, err)
	}

	const reconciliationTag = "reconciliation"

	dispatch := func(kind EventKind, rows []index.Row) {
		if !mp.mask.Subscribes(kind) {
			return
		}

		for _, r := range rows {
			c.consumer(Event{
				MonitoredRoot: mp.root,
				Path:          filepath.Join(r.Parent, r.Name),
				Kind:          kind,
				SourceTag:     reconciliationTag + ":" + correlationID,
			})
		}
	}

	dispatch(Created, delta.Created)
	dispatch(Modified, delta.Modified)
	dispatch(Deleted, delta.Deleted)

	return nil
}
