package fsmonitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/fstrackd/internal/index"
)

// runServiceLoop is the single owner of monitoredPath state. On every tick
// it drains at most one removal and one registration, then flushes the
// pending mutation buffers the producer accumulated since the last tick.
//
// Removal is drained ahead of registration and from its own queue — not by
// re-reading the add queue for a matching name, which was the source
// behavior's apparent defect: a root queued for removal while a
// registration for the same root was still in flight could be picked up
// twice from one channel and left in an inconsistent state.
func (c *Core) runServiceLoop(ctx context.Context) {
	ticker := time.NewTicker(c.serviceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.serviceTick(ctx)
		}
	}
}

func (c *Core) serviceTick(ctx context.Context) {
	select {
	case req := <-c.removeQueue:
		req.resultCh <- c.handleRemove(req.root)
	default:
	}

	select {
	case req := <-c.addQueue:
		req.resultCh <- c.handleAdd(ctx, req)
	default:
	}

	c.flushPending(ctx)
}

func (c *Core) handleAdd(ctx context.Context, req addRequest) error {
	c.mu.Lock()
	if _, exists := c.paths[req.root]; exists {
		c.mu.Unlock()
		return ErrAlreadyRegistered
	}

	mp := &monitoredPath{
		root:        req.root,
		mask:        req.mask,
		persistent:  req.persistent,
		watchedDirs: make(map[string]bool),
		state:       stateInstalling,
	}
	c.paths[req.root] = mp
	c.mu.Unlock()

	if err := c.installWatches(req.root, mp); err != nil {
		c.mu.Lock()
		delete(c.paths, req.root)
		c.mu.Unlock()

		c.logger.Error("watch install failed, root not registered",
			slog.String("root", req.root), slog.String("error", err.Error()))

		return fmt.Errorf("fsmonitor: installing watches on %s: %w", req.root, err)
	}

	c.mu.Lock()
	mp.state = stateReconciling
	c.mu.Unlock()

	if err := c.reconcile(ctx, mp); err != nil {
		c.mu.Lock()
		delete(c.paths, req.root)
		c.mu.Unlock()

		for dir := range mp.watchedDirs {
			_ = c.watcher.Remove(dir) //nolint:errcheck
		}

		c.logger.Error("reconciliation failed, root not registered",
			slog.String("root", req.root), slog.String("error", err.Error()))

		return fmt.Errorf("fsmonitor: reconciling %s: %w", req.root, err)
	}

	c.mu.Lock()
	mp.state = stateActive
	c.mu.Unlock()

	c.logger.Info("root registered", slog.String("root", req.root), slog.Bool("persistent", req.persistent))

	return nil
}

func (c *Core) handleRemove(root string) error {
	c.mu.Lock()
	mp, exists := c.paths[root]
	if !exists {
		c.mu.Unlock()
		return ErrNotRegistered
	}
	delete(c.paths, root)
	c.mu.Unlock()

	for dir := range mp.watchedDirs {
		if err := c.watcher.Remove(dir); err != nil {
			c.logger.Debug("removing watch", slog.String("path", dir), slog.String("error", err.Error()))
		}
	}

	c.logger.Info("root unregistered", slog.String("root", root))

	return nil
}

// flushPending writes every buffered mutation to the Shadow Index and
// clears the buffers. Buffers are only ever appended to by the producer
// goroutine and only ever drained here, both under c.mu, so no mutation is
// observed twice. Per spec.md §7, a ShadowIndexIOError is retried on the
// next service tick — a batch that fails to write is requeued (ahead of
// whatever the producer appended in the meantime) rather than discarded.
func (c *Core) flushPending(ctx context.Context) {
	c.mu.Lock()
	created := c.pendingCreated
	modified := c.pendingModified
	deleted := c.pendingDeleted
	c.pendingCreated = nil
	c.pendingModified = nil
	c.pendingDeleted = nil
	c.mu.Unlock()

	if len(created) > 0 {
		if err := c.idx.AddFiles(ctx, created); err != nil {
			c.logger.Error("flushing created rows, will retry next tick", slog.String("error", err.Error()))
			c.requeueCreated(created)
		}
	}

	if len(modified) > 0 {
		if err := c.idx.UpdateFiles(ctx, modified); err != nil {
			c.logger.Error("flushing modified rows, will retry next tick", slog.String("error", err.Error()))
			c.requeueModified(modified)
		}
	}

	if len(deleted) == 0 {
		return
	}

	byRoot := make(map[string][]index.Key)
	for _, d := range deleted {
		byRoot[d.root] = append(byRoot[d.root], d.key)
	}

	var failedRoots map[string]bool

	for root, keys := range byRoot {
		if err := c.idx.DeleteFiles(ctx, root, keys); err != nil {
			c.logger.Error("flushing deleted rows, will retry next tick",
				slog.String("root", root), slog.String("error", err.Error()))

			if failedRoots == nil {
				failedRoots = make(map[string]bool)
			}

			failedRoots[root] = true
		}
	}

	if len(failedRoots) > 0 {
		failed := make([]pendingDelete, 0, len(deleted))

		for _, d := range deleted {
			if failedRoots[d.root] {
				failed = append(failed, d)
			}
		}

		c.requeueDeleted(failed)
	}
}

// requeueCreated prepends rows back onto the pending-created buffer ahead
// of anything the producer appended since the failed flush attempt.
func (c *Core) requeueCreated(rows []index.Row) {
	c.mu.Lock()
	c.pendingCreated = append(append([]index.Row(nil), rows...), c.pendingCreated...)
	c.mu.Unlock()
}

// requeueModified prepends rows back onto the pending-modified buffer ahead
// of anything the producer appended since the failed flush attempt.
func (c *Core) requeueModified(rows []index.Row) {
	c.mu.Lock()
	c.pendingModified = append(append([]index.Row(nil), rows...), c.pendingModified...)
	c.mu.Unlock()
}

// requeueDeleted prepends entries back onto the pending-deleted buffer ahead
// of anything the producer appended since the failed flush attempt.
func (c *Core) requeueDeleted(entries []pendingDelete) {
	c.mu.Lock()
	c.pendingDeleted = append(append([]pendingDelete(nil), entries...), c.pendingDeleted...)
	c.mu.Unlock()
}

// pendingDelete pairs a deletion key with the root it was observed under —
// the Shadow Index deletes are scoped per root.
type pendingDelete struct {
	root string
	key  index.Key
}
