package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, d *Debouncer) []Event {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_CoalescesCreateModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "a.go", Operation: OpCreate})
	d.Add(Event{Path: "a.go", Operation: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation, "CREATE + MODIFY = CREATE")
}

func TestDebouncer_CreateDeleteCancels(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "tmp.go", Operation: OpCreate})
	d.Add(Event{Path: "tmp.go", Operation: OpDelete})
	d.Add(Event{Path: "keep.go", Operation: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "keep.go", batch[0].Path, "CREATE + DELETE cancels out")
}

func TestDebouncer_ModifyDeleteBecomesDelete(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "a.go", Operation: OpModify})
	d.Add(Event{Path: "a.go", Operation: OpDelete})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpDelete, batch[0].Operation)
}

func TestDebouncer_DeleteCreateBecomesModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "a.go", Operation: OpDelete})
	d.Add(Event{Path: "a.go", Operation: OpCreate})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation, "DELETE + CREATE = replace")
}

func TestDebouncer_DistinctPathsStaySeparate(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "a.go", Operation: OpModify})
	d.Add(Event{Path: "b.go", Operation: OpModify})

	batch := collectBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	d.Stop()
	d.Stop()

	// Adds after stop are dropped silently.
	d.Add(Event{Path: "a.go", Operation: OpModify})
}
