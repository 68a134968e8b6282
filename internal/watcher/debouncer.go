package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// netEffect is the accumulated outcome of all events seen for one path
// within the debounce window, relative to the index state before the
// window opened.
type netEffect int

const (
	// effectNone: the events cancelled out (a file created and deleted
	// inside the window never really existed).
	effectNone netEffect = iota
	// effectAdd: the path is new to the index.
	effectAdd
	// effectUpdate: the path existed and its content changed (including
	// delete-then-recreate, which is a replacement).
	effectUpdate
	// effectDrop: the path is gone.
	effectDrop
)

// transitions folds an incoming operation into the accumulated effect.
// The table encodes the coalescing rules declaratively:
//
//	add    + delete -> none    (created and destroyed in-window)
//	add    + modify -> add     (still new to the index)
//	drop   + create -> update  (the file was replaced)
//	update + delete -> drop    (the file is gone)
var transitions = map[netEffect]map[Operation]netEffect{
	effectNone: {
		OpCreate: effectAdd,
		OpModify: effectUpdate,
		OpDelete: effectDrop,
		OpRename: effectUpdate,
	},
	effectAdd: {
		OpCreate: effectAdd,
		OpModify: effectAdd,
		OpDelete: effectNone,
		OpRename: effectAdd,
	},
	effectUpdate: {
		OpCreate: effectUpdate,
		OpModify: effectUpdate,
		OpDelete: effectDrop,
		OpRename: effectUpdate,
	},
	effectDrop: {
		OpCreate: effectUpdate,
		OpModify: effectUpdate,
		OpDelete: effectDrop,
		OpRename: effectUpdate,
	},
}

// emittedOp converts a settled effect back into the single operation the
// pipeline should apply.
func (e netEffect) emittedOp() Operation {
	switch e {
	case effectAdd:
		return OpCreate
	case effectDrop:
		return OpDelete
	default:
		return OpModify
	}
}

// pendingChange tracks one path's accumulated effect plus the newest
// event metadata (timestamp, old path for renames).
type pendingChange struct {
	effect netEffect
	last   Event
}

// Debouncer coalesces rapid file events per path so the pipeline sees at
// most one operation per path per window. All state lives in a single
// run loop; Add and Stop only communicate over channels.
type Debouncer struct {
	window time.Duration
	in     chan Event
	out    chan []Event
	done   chan struct{}
	stop   sync.Once
}

// NewDebouncer creates a debouncer and starts its run loop.
func NewDebouncer(window time.Duration) *Debouncer {
	d := &Debouncer{
		window: window,
		in:     make(chan Event, 64),
		out:    make(chan []Event, 10),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Add enqueues an event for coalescing. Events after Stop are discarded.
func (d *Debouncer) Add(event Event) {
	select {
	case d.in <- event:
	case <-d.done:
	}
}

// Output returns the channel of debounced event batches. It is closed
// when the debouncer stops.
func (d *Debouncer) Output() <-chan []Event {
	return d.out
}

// Stop terminates the run loop and closes the output channel. Safe to
// call multiple times.
func (d *Debouncer) Stop() {
	d.stop.Do(func() { close(d.done) })
}

// run owns the pending state. Each incoming event restarts the window
// timer; when the timer fires, the settled effects flush as one batch.
func (d *Debouncer) run() {
	defer close(d.out)

	pending := make(map[string]*pendingChange)
	timer := time.NewTimer(d.window)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case event := <-d.in:
			d.fold(pending, event)
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(d.window)
			armed = true

		case <-timer.C:
			armed = false
			d.flush(pending)
			pending = make(map[string]*pendingChange)

		case <-d.done:
			if armed {
				timer.Stop()
			}
			return
		}
	}
}

// fold applies one event to the pending state via the transition table.
func (d *Debouncer) fold(pending map[string]*pendingChange, event Event) {
	change, ok := pending[event.Path]
	if !ok {
		change = &pendingChange{}
		pending[event.Path] = change
	}

	change.effect = transitions[change.effect][event.Operation]
	change.last = event

	if change.effect == effectNone {
		delete(pending, event.Path)
	}
}

// flush emits the settled batch in deterministic path order.
func (d *Debouncer) flush(pending map[string]*pendingChange) {
	if len(pending) == 0 {
		return
	}

	paths := make([]string, 0, len(pending))
	for path := range pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	events := make([]Event, 0, len(paths))
	for _, path := range paths {
		change := pending[path]
		events = append(events, Event{
			Path:      path,
			OldPath:   change.last.OldPath,
			Operation: change.effect.emittedOp(),
			Timestamp: change.last.Timestamp,
		})
	}

	select {
	case d.out <- events:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)),
		)
	}
}
