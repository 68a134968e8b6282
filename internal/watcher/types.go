// Package watcher monitors the repository for filesystem changes. Events
// from the platform-native monitor are debounced and coalesced per path
// before reaching the reindex pipeline; a periodic full scan recovers from
// missed events.
package watcher

import (
	"time"
)

// Operation is a filesystem event type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
	// OpRename indicates a file was renamed; the event carries the old
	// path.
	OpRename
)

// String returns a human-readable representation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Event is one filesystem event.
type Event struct {
	// Path is repo-relative.
	Path string
	// OldPath is the previous path for renames, empty otherwise.
	OldPath string
	// Operation is the event type.
	Operation Operation
	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow batches rapid successive edits per path.
	DebounceWindow time.Duration
	// EventBufferSize is the event channel capacity.
	EventBufferSize int
	// FullScanInterval is the period of the reconciliation scan signal.
	// Zero disables it.
	FullScanInterval time.Duration
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:   100 * time.Millisecond,
		EventBufferSize:  1000,
		FullScanInterval: 5 * time.Minute,
	}
}

// WithDefaults fills zero values with defaults.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
