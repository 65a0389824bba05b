package fsmonitor

import "github.com/fsnotify/fsnotify"

// kernelBits is the static bidirectional translation between canonical
// event kinds and fsnotify's kernel-reported operation bits. MODIFIED maps
// to the union of the content-change and attribute-change bits. This table
// holds the forward (canonical -> kernel) direction only; the reverse
// (kernel -> canonical) direction is the separate switch in classify.
var kernelBits = map[EventKind]fsnotify.Op{
	Created:  fsnotify.Create,
	Modified: fsnotify.Write | fsnotify.Chmod,
	Deleted:  fsnotify.Remove,
	// MonitoredDirMoved and DroppedEvents are synthesized by the core from
	// context (a rename of the root itself, or a watcher overflow/error),
	// not from a single fsnotify.Op bit — they have no forward mapping.
}

// KernelMask returns the union of kernel bits the event mask subscribes
// to. The core does not call it: fsnotify has no install-time mask, every
// watch receives every op, and handleKernelEvent filters each classified
// event with EventMask.Subscribes instead.
func (m EventMask) KernelMask() fsnotify.Op {
	var bits fsnotify.Op

	for kind, kbits := range kernelBits {
		if m.Subscribes(kind) {
			bits |= kbits
		}
	}

	return bits
}

// classify maps a single fsnotify operation bit set to the canonical event
// kind it represents. A raw fsnotify.Event can have multiple bits set
// (e.g. Write|Chmod can arrive together); classify picks the strongest
// signal in created > deleted > modified > renamed order, matching
// inotify's own precedence (a path that was both written and chmod'd in
// one notification batch is reported as MODIFIED either way, so only
// Create/Remove need to take priority over Write/Chmod).
func classify(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return Created, true
	case op&fsnotify.Remove != 0:
		return Deleted, true
	case op&(fsnotify.Write|fsnotify.Chmod) != 0:
		return Modified, true
	case op&fsnotify.Rename != 0:
		// The kernel only sends Rename for the old name of a descendant
		// path; the new name arrives as its own Create event. spec.md's
		// non-goals explicitly drop rename-pair preservation in favor of
		// surfacing renames as delete + create, so the old name's Rename
		// op is itself the delete half of that decomposition.
		return Deleted, true
	default:
		return 0, false
	}
}
