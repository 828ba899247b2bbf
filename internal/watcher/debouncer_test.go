package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(path string, op Operation) FileEvent {
	return FileEvent{Path: path, Operation: op, Timestamp: time.Now()}
}

func receiveBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncerEmitsAfterWindow(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(event("main.go", OpModify))

	batch := receiveBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "main.go", batch[0].Path)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerCoalescesModifyBurst(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Add(event("main.go", OpModify))
	}

	batch := receiveBatch(t, d)
	assert.Len(t, batch, 1)
}

func TestDebouncerCreateThenDeleteCancels(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(event("tmp.go", OpCreate))
	d.Add(event("tmp.go", OpDelete))
	d.Add(event("kept.go", OpModify))

	batch := receiveBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "kept.go", batch[0].Path)
}

func TestDebouncerCreateThenModifyStaysCreate(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(event("new.go", OpCreate))
	d.Add(event("new.go", OpModify))

	batch := receiveBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncerDeleteThenCreateBecomesModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(event("swap.go", OpDelete))
	d.Add(event("swap.go", OpCreate))

	batch := receiveBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerBatchesDistinctPaths(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add(event("a.go", OpModify))
	d.Add(event("b.go", OpModify))
	d.Add(event("c.go", OpDelete))

	batch := receiveBatch(t, d)
	assert.Len(t, batch, 3)
}

func TestDebouncerStopClosesOutput(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Stop()
	d.Stop() // idempotent

	_, open := <-d.Output()
	assert.False(t, open)
}
