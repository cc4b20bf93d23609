package lock

import (
	"sync"

	"github.com/kolkov/reclock/internal/registry"
	"github.com/kolkov/reclock/internal/report"
)

// Registry tracks the mutexes constructed with WithRegistry(r) until they
// are closed. Pass one registry to the owners that should share it; there
// is no process-wide instance. The zero value is an empty registry.
type Registry struct {
	once  sync.Once
	table *registry.Table
}

// MutexState is a point-in-time view of one registered mutex.
type MutexState struct {
	ID    uint64
	Name  string
	Owner int64  // 0 if free
	Depth int32  // recursion depth of Owner
	Site  string // "function file:line" of the acquisition, if tracked
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{table: registry.New()}
}

func (r *Registry) tbl() *registry.Table {
	r.once.Do(func() {
		if r.table == nil {
			r.table = registry.New()
		}
	})
	return r.table
}

// Live returns how many registered mutexes have not been closed.
func (r *Registry) Live() int {
	return r.tbl().Live()
}

// Mutexes returns every live mutex, ordered by registration.
func (r *Registry) Mutexes() []MutexState {
	return convert(r.tbl().Snapshot())
}

// Held returns the live mutexes that are currently held.
func (r *Registry) Held() []MutexState {
	return convert(r.tbl().Held())
}

func convert(states []registry.State) []MutexState {
	out := make([]MutexState, len(states))
	for i, st := range states {
		out[i] = MutexState{
			ID:    st.ID,
			Name:  st.Name,
			Owner: st.Owner,
			Depth: st.Depth,
			Site:  report.SiteFrame(st.Site),
		}
	}
	return out
}
