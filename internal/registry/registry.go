package registry

import (
	"sort"
	"sync"
	"sync/atomic"
)

// State is a point-in-time view of one registered mutex.
type State struct {
	// ID is the registry ID returned by Add.
	ID uint64

	// Name is the mutex name.
	Name string

	// Owner is the goroutine holding the mutex, 0 if free.
	Owner int64

	// Depth is the owner's recursion depth.
	Depth int32

	// Site is the stackdepot hash of the owner's outermost acquisition.
	Site uint64
}

// Probe reports the current state of a registered mutex.
type Probe func() State

// Table maps registry IDs to probes. Entries are written once and deleted
// once; reads happen only during diagnostics.
type Table struct {
	entries sync.Map // uint64 -> Probe
	nextID  atomic.Uint64
	live    atomic.Int64
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Add registers probe and returns its ID. IDs start at 1.
func (t *Table) Add(probe Probe) uint64 {
	id := t.nextID.Add(1)
	t.entries.Store(id, probe)
	t.live.Add(1)
	return id
}

// Remove unregisters id. Removing an unknown ID is a no-op.
func (t *Table) Remove(id uint64) {
	if _, loaded := t.entries.LoadAndDelete(id); loaded {
		t.live.Add(-1)
	}
}

// Live returns the number of registered entries.
func (t *Table) Live() int {
	return int(t.live.Load())
}

// Snapshot probes every entry and returns the states ordered by ID.
//
// Probes run outside any table lock; a mutex changing hands during the
// snapshot is reported in whichever state its probe observed.
func (t *Table) Snapshot() []State {
	var out []State
	t.entries.Range(func(key, val any) bool {
		st := val.(Probe)()
		st.ID = key.(uint64)
		out = append(out, st)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Held returns the snapshot entries whose mutex is currently owned.
func (t *Table) Held() []State {
	all := t.Snapshot()
	held := all[:0]
	for _, st := range all {
		if st.Owner != 0 {
			held = append(held, st)
		}
	}
	return held
}
