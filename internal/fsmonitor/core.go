// Package fsmonitor is the FS Monitor Core: it owns the live kernel watch
// across every monitored root, reconciles each root against the Shadow
// Index when it is registered, and translates raw filesystem activity into
// the canonical event vocabulary dispatched to a single consumer callback.
package fsmonitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/fstrackd/internal/index"
	"github.com/tonimelisma/fstrackd/internal/scanner"
)

// state is a monitored root's position in the registration lifecycle.
type state int

const (
	stateUnregistered state = iota
	stateInstalling
	stateReconciling
	stateActive
)

func (s state) String() string {
	switch s {
	case stateUnregistered:
		return "UNREGISTERED"
	case stateInstalling:
		return "INSTALLING"
	case stateReconciling:
		return "RECONCILING"
	case stateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// monitoredPath is the Core's bookkeeping record for one registered root.
type monitoredPath struct {
	root        string
	mask        EventMask
	persistent  bool
	watchedDirs map[string]bool
	state       state
}

// ErrAlreadyRegistered is returned by Add when root is already monitored.
var ErrAlreadyRegistered = errors.New("fsmonitor: root already registered")

// ErrNotRegistered is returned by Remove when root is not currently monitored.
var ErrNotRegistered = errors.New("fsmonitor: root not registered")

// ErrClosed is returned by Add/Remove once the core has been stopped.
var ErrClosed = errors.New("fsmonitor: core stopped")

// addRequest is one pending registration, submitted to the add queue and
// resolved only by the service loop — the single owner of monitoredPath
// state — so every mutation is serialized without a held lock spanning I/O.
type addRequest struct {
	root       string
	mask       EventMask
	persistent bool
	resultCh   chan error
}

// removeRequest is one pending unregistration.
type removeRequest struct {
	root     string
	resultCh chan error
}

// Core is the FS Monitor Core. One Core serves one or more monitored roots
// through a single shared kernel watch.
type Core struct {
	idx      *index.Index
	scan     *scanner.Scanner
	consumer Consumer
	logger   *slog.Logger
	codec    PathCodec
	ignored  []string

	newWatcher func() (FsWatcher, error)

	serviceInterval time.Duration
	addQueueSize    int
	removeQueueSize int

	mu    sync.Mutex
	paths map[string]*monitoredPath

	pendingCreated  []index.Row
	pendingModified []index.Row
	pendingDeleted  []pendingDelete

	addQueue    chan addRequest
	removeQueue chan removeRequest

	watcher FsWatcher

	cancel context.CancelFunc
	group  *errgroup.Group
	closed bool
}

// Option configures a Core at construction time.
type Option func(*Core)

// WithServiceInterval overrides the default 500ms service-loop tick.
func WithServiceInterval(d time.Duration) Option {
	return func(c *Core) { c.serviceInterval = d }
}

// WithIgnoredPrefixes sets the global ignored-directory set: any event
// whose parent directory has one of these absolute paths as a prefix is
// silently dropped, and no kernel watch is installed on the prefix's subtree.
// Reconciliation scans are filtered by the Scanner's own IgnoreFunc, not by
// this set.
func WithIgnoredPrefixes(prefixes []string) Option {
	return func(c *Core) { c.ignored = append([]string(nil), prefixes...) }
}

// WithPathCodec overrides the default NFC path codec.
func WithPathCodec(codec PathCodec) Option {
	return func(c *Core) { c.codec = codec }
}

// withWatcherFactory is test-only: it injects a fake FsWatcher in place of
// a real fsnotify.Watcher.
func withWatcherFactory(f func() (FsWatcher, error)) Option {
	return func(c *Core) { c.newWatcher = f }
}

const (
	defaultServiceInterval = 500 * time.Millisecond
	defaultQueueSize       = 64
)

// New constructs a Core. idx and scan back every registered root; consumer
// receives every dispatched canonical event.
func New(idx *index.Index, scan *scanner.Scanner, consumer Consumer, logger *slog.Logger, opts ...Option) *Core {
	c := &Core{
		idx:             idx,
		scan:            scan,
		consumer:        consumer,
		logger:          logger,
		codec:           NewNFCPathCodec(),
		newWatcher:      newFsnotifyWatcher,
		serviceInterval: defaultServiceInterval,
		addQueueSize:    defaultQueueSize,
		removeQueueSize: defaultQueueSize,
		paths:           make(map[string]*monitoredPath),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.addQueue = make(chan addRequest, c.addQueueSize)
	c.removeQueue = make(chan removeRequest, c.removeQueueSize)

	return c
}

// Start installs the shared kernel watch and launches the producer and
// service-loop goroutines. It returns once both are running; Stop(ctx)
// shuts them down.
func (c *Core) Start(ctx context.Context) error {
	watcher, err := c.newWatcher()
	if err != nil {
		return fmt.Errorf("fsmonitor: creating watcher: %w", err)
	}

	c.watcher = watcher

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	group, runCtx := errgroup.WithContext(runCtx)
	c.group = group

	group.Go(func() error {
		c.runProducer(runCtx)
		return nil
	})

	group.Go(func() error {
		c.runServiceLoop(runCtx)
		return nil
	})

	c.logger.Info("fs monitor core started", slog.Duration("service_interval", c.serviceInterval))

	return nil
}

// Stop cancels the producer and service loop and waits for them to exit.
func (c *Core) Stop() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			c.logger.Warn("closing watcher", slog.String("error", err.Error()))
		}
	}

	if c.group != nil {
		if err := c.group.Wait(); err != nil {
			return err
		}
	}

	c.logger.Info("fs monitor core stopped")

	return nil
}

// Add registers root for monitoring under mask, using persistent
// reconciliation (diff scan against the Shadow Index) when persistent is
// true, or a one-time initial scan otherwise. It enqueues the registration
// onto the service loop's add queue and blocks until that loop has
// installed the watch and completed reconciliation, surfacing any install
// or scan failure to the caller synchronously.
func (c *Core) Add(ctx context.Context, root string, mask EventMask, persistent bool) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}

	resultCh := make(chan error, 1)

	req := addRequest{root: root, mask: mask, persistent: persistent, resultCh: resultCh}

	select {
	case c.addQueue <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remove unregisters root. It enqueues onto the service loop's remove queue
// and blocks until the loop has torn down the watch.
func (c *Core) Remove(ctx context.Context, root string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}

	resultCh := make(chan error, 1)

	req := removeRequest{root: root, resultCh: resultCh}

	select {
	case c.removeQueue <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the registration state of root, for diagnostics.
func (c *Core) State(root string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mp, ok := c.paths[root]
	if !ok {
		return "", false
	}

	return mp.state.String(), true
}

// isIgnored reports whether dir falls under a configured ignored prefix.
func (c *Core) isIgnored(dir string) bool {
	for _, prefix := range c.ignored {
		if dir == prefix || (len(dir) > len(prefix) && dir[:len(prefix)] == prefix && dir[len(prefix)] == filepath.Separator) {
			return true
		}
	}

	return false
}

// resolveRoot finds the registered root that is the longest matching
// ancestor of path — the monitored roots never nest in this design, but
// longest-prefix matching keeps the lookup well-defined even if they did.
func (c *Core) resolveRoot(path string) (string, bool) {
	var best string
	found := false

	for root := range c.paths {
		if path != root && !hasPathPrefix(path, root) {
			continue
		}

		if !found || len(root) > len(best) {
			best = root
			found = true
		}
	}

	return best, found
}

func hasPathPrefix(path, root string) bool {
	if len(path) <= len(root) {
		return false
	}

	return path[:len(root)] == root && path[len(root)] == filepath.Separator
}
