package fsmonitor

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fakeWatcher is an in-memory FsWatcher for tests: Add/Remove just record
// which paths are watched, and the test injects kernel events directly by
// sending on events.
type fakeWatcher struct {
	mu      sync.Mutex
	watched map[string]bool
	addErr  map[string]error

	events chan fsnotify.Event
	errs   chan error
	closed bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		watched: make(map[string]bool),
		addErr:  make(map[string]error),
		events:  make(chan fsnotify.Event, 256),
		errs:    make(chan error, 16),
	}
}

func (f *fakeWatcher) Add(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.addErr[name]; ok {
		return err
	}

	f.watched[name] = true

	return nil
}

func (f *fakeWatcher) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.watched, name)

	return nil
}

func (f *fakeWatcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.events)
		close(f.errs)
	}

	return nil
}

func (f *fakeWatcher) Events() <-chan fsnotify.Event { return f.events }
func (f *fakeWatcher) Errors() <-chan error          { return f.errs }

func (f *fakeWatcher) isWatched(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.watched[name]
}

func (f *fakeWatcher) send(ev fsnotify.Event) {
	f.events <- ev
}
