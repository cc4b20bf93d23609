package lock

import (
	"sync/atomic"

	"github.com/kolkov/reclock/internal/goid"
)

// Guard is a held acquisition of a Mutex, released exactly once.
//
//	g, err := lock.Scope(&b.mu)
//	if err != nil {
//		return err
//	}
//	defer g.Release()
//
// Because Release is deferred, the mutex is released on every path out of
// the scope: normal return, early return, and panics unwinding through it.
type Guard struct {
	_ noCopy

	m        *Mutex
	released atomic.Bool
}

// Scope acquires m and returns a guard for the acquisition. If the
// acquisition fails the error is returned and there is no guard: the caller
// never proceeds believing it holds the lock.
func Scope(m *Mutex) (*Guard, error) {
	if err := m.acquire(OpLock); err != nil {
		return nil, err
	}
	return &Guard{m: m}, nil
}

// Release gives back the acquisition. A second Release, or a Release from
// a goroutine that does not hold the mutex, goes to the FailureHandler.
func (g *Guard) Release() {
	if g.released.Swap(true) {
		g.m.fail(g.m.violation(OpRelease, goid.Current(), ErrGuardReleased))
		return
	}
	if err := g.m.release(OpRelease); err != nil {
		g.m.fail(err)
	}
}

// Mutex returns the guarded mutex.
func (g *Guard) Mutex() *Mutex {
	return g.m
}

// Do runs fn while holding m and returns fn's error. m is released even if
// fn panics.
func Do(m *Mutex, fn func() error) error {
	g, err := Scope(m)
	if err != nil {
		return err
	}
	defer g.Release()
	return fn()
}
