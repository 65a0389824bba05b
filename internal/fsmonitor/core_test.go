package fsmonitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/fstrackd/internal/index"
	"github.com/tonimelisma/fstrackd/internal/scanner"
	"github.com/tonimelisma/fstrackd/testutil"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) consume(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, len(c.events))
	copy(out, c.events)

	return out
}

func (c *collector) waitForCount(t *testing.T, n int) []Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := c.snapshot(); len(snap) >= n {
			return snap
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %d events, got %d", n, len(c.snapshot()))

	return nil
}

type testHarness struct {
	core    *Core
	fake    *fakeWatcher
	idx     *index.Index
	scanner *scanner.Scanner
	coll    *collector
}

func newHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()

	logger := testutil.Logger(t)

	idx, err := index.Open(filepath.Join(t.TempDir(), "shadow.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	sc := scanner.New(idx, nil, logger)
	coll := &collector{}

	fake := newFakeWatcher()

	allOpts := append([]Option{
		withWatcherFactory(func() (FsWatcher, error) { return fake, nil }),
		WithServiceInterval(20 * time.Millisecond),
	}, opts...)

	c := New(idx, sc, coll.consume, logger, allOpts...)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Stop() })

	return &testHarness{core: c, fake: fake, idx: idx, scanner: sc, coll: coll}
}

func mkTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(root, 0o755))

	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestAddNonPersistentSeedsIndexWithoutEvents(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{"a.txt": "hello"})

	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.core.Add(ctx, root, MaskAll, false))

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, h.coll.snapshot())

	empty, err := h.idx.IsEmpty(context.Background(), root)
	require.NoError(t, err)
	require.False(t, empty)

	state, ok := h.core.State(root)
	require.True(t, ok)
	require.Equal(t, "ACTIVE", state)
}

func TestAddPersistentReconciliationSynthesizesEvents(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{"old.txt": "v1"})

	h := newHarness(t)
	ctx := context.Background()

	// Seed the index as if a prior run had observed only old.txt.
	require.NoError(t, h.scanner.InitialScan(ctx, root))

	// Simulate offline activity: a new file appears while unmonitored.
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("v1"), 0o644))

	addCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	require.NoError(t, h.core.Add(addCtx, root, MaskAll, true))

	events := h.coll.waitForCount(t, 1)

	found := false

	for _, ev := range events {
		if ev.Kind == Created && strings.HasSuffix(ev.Path, "new.txt") {
			found = true
			require.True(t, strings.HasPrefix(ev.SourceTag, "reconciliation:"))
		}
	}

	require.True(t, found, "expected a synthetic CREATED event for new.txt")
}

func TestLiveCreateEventIsDispatchedAndFlushedToIndex(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, nil)

	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.core.Add(ctx, root, MaskAll, false))

	newFile := filepath.Join(root, "fresh.txt")
	require.NoError(t, os.WriteFile(newFile, []byte("x"), 0o644))

	h.fake.send(fsnotify.Event{Name: newFile, Op: fsnotify.Create})

	events := h.coll.waitForCount(t, 1)
	require.Equal(t, Created, events[0].Kind)
	require.Equal(t, "live", events[0].SourceTag)

	require.Eventually(t, func() bool {
		rows, err := h.idx.ListSubtree(context.Background(), root)
		if err != nil {
			return false
		}

		for _, r := range rows {
			if r.Name == "fresh.txt" {
				return true
			}
		}

		return false
	}, time.Second, 10*time.Millisecond)
}

func TestRemoveThenAddAgainSucceeds(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, nil)

	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.core.Add(ctx, root, MaskAll, false))
	require.NoError(t, h.core.Remove(ctx, root))

	_, ok := h.core.State(root)
	require.False(t, ok)

	require.NoError(t, h.core.Add(ctx, root, MaskAll, false))
}

func TestAddTwiceReturnsAlreadyRegistered(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, nil)

	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.core.Add(ctx, root, MaskAll, false))
	err := h.core.Add(ctx, root, MaskAll, false)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRemoveUnknownRootReturnsNotRegistered(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := h.core.Remove(ctx, "/nowhere")
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestIgnoredPrefixDropsEvent(t *testing.T) {
	root := t.TempDir()
	ignored := filepath.Join(root, "node_modules")
	mkTree(t, ignored, map[string]string{"pkg.json": "{}"})

	h := newHarness(t, WithIgnoredPrefixes([]string{ignored}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.core.Add(ctx, root, MaskAll, false))

	ignoredFile := filepath.Join(ignored, "new.json")
	h.fake.send(fsnotify.Event{Name: ignoredFile, Op: fsnotify.Create})

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, h.coll.snapshot())
}

func TestDroppedEventsDispatchedOnWatcherError(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, nil)

	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.core.Add(ctx, root, MaskAll, false))

	h.fake.errs <- fsnotify.ErrEventOverflow

	events := h.coll.waitForCount(t, 1)
	require.Equal(t, DroppedEvents, events[0].Kind)
}

func TestLiveRenameDecomposesToDeleteAndIsFlushedFromIndex(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, map[string]string{"old.txt": "x"})

	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.core.Add(ctx, root, MaskAll, false))

	oldPath := filepath.Join(root, "old.txt")
	newPath := filepath.Join(root, "new.txt")
	require.NoError(t, os.Rename(oldPath, newPath))

	// The kernel only sends Rename for the old name; the new name arrives
	// as its own Create event.
	h.fake.send(fsnotify.Event{Name: oldPath, Op: fsnotify.Rename})
	h.fake.send(fsnotify.Event{Name: newPath, Op: fsnotify.Create})

	events := h.coll.waitForCount(t, 2)

	var sawDeleteOld, sawCreateNew bool

	for _, ev := range events {
		if ev.Kind == Deleted && strings.HasSuffix(ev.Path, "old.txt") {
			sawDeleteOld = true
		}

		if ev.Kind == Created && strings.HasSuffix(ev.Path, "new.txt") {
			sawCreateNew = true
		}
	}

	require.True(t, sawDeleteOld, "rename's old name must surface as a DELETED event")
	require.True(t, sawCreateNew, "rename's new name must surface as a CREATED event")

	require.Eventually(t, func() bool {
		rows, err := h.idx.ListSubtree(context.Background(), root)
		if err != nil {
			return false
		}

		for _, r := range rows {
			if r.Name == "old.txt" {
				return false
			}
		}

		return true
	}, time.Second, 10*time.Millisecond, "old.txt must be removed from the Shadow Index")
}

func TestLiveEventStatFailureIsDroppedNotMutated(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, nil)

	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.core.Add(ctx, root, MaskAll, false))

	// Simulate a file that vanished between the kernel event firing and the
	// stat call: no file is ever created on disk.
	ghost := filepath.Join(root, "ghost.txt")
	h.fake.send(fsnotify.Event{Name: ghost, Op: fsnotify.Create})

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, h.coll.snapshot(), "a stat failure must drop the event, not dispatch it")

	rows, err := h.idx.ListSubtree(context.Background(), root)
	require.NoError(t, err)

	for _, r := range rows {
		require.NotEqual(t, "ghost.txt", r.Name, "a stat failure must not mutate the Shadow Index")
	}
}

func TestMaskedOutEventKindNotDispatched(t *testing.T) {
	root := t.TempDir()
	mkTree(t, root, nil)

	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mask := MaskDeleted // subscribe only to deletions
	require.NoError(t, h.core.Add(ctx, root, mask, false))

	newFile := filepath.Join(root, "ignored-kind.txt")
	require.NoError(t, os.WriteFile(newFile, []byte("x"), 0o644))
	h.fake.send(fsnotify.Event{Name: newFile, Op: fsnotify.Create})

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, h.coll.snapshot())
}
