package config

import (
	"fmt"

	"github.com/tonimelisma/fstrackd/internal/fsmonitor"
)

// eventNames are the TOML-facing spellings of the canonical event kinds a
// root's "events" list may name.
var eventNames = map[string]fsmonitor.EventMask{
	"created":             fsmonitor.MaskCreated,
	"modified":            fsmonitor.MaskModified,
	"deleted":             fsmonitor.MaskDeleted,
	"monitored_dir_moved": fsmonitor.MaskMonitoredDirMoved,
	"dropped_events":      fsmonitor.MaskDroppedEvents,
}

// EventMask parses a root's "events" list into an EventMask. An empty list
// subscribes to every event kind.
func (r RootConfig) EventMask() (fsmonitor.EventMask, error) {
	if len(r.Events) == 0 {
		return fsmonitor.MaskAll, nil
	}

	var mask fsmonitor.EventMask

	for _, name := range r.Events {
		bit, ok := eventNames[name]
		if !ok {
			return 0, fmt.Errorf("config: unknown event kind %q for root %q", name, r.Path)
		}

		mask |= bit
	}

	return mask, nil
}
