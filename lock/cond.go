package lock

import (
	"sync"
	"time"

	"github.com/kolkov/reclock/internal/goid"
)

// Cond is a condition variable bound to a Mutex.
//
// Unlike a sync.Cond over a sync.Mutex, Wait works at any recursion depth:
// it releases every level the caller holds and restores the same depth
// before returning.
type Cond struct {
	_ noCopy

	m *Mutex
	c *sync.Cond
}

// NewCond returns a condition variable using m.
func NewCond(m *Mutex) *Cond {
	return &Cond{m: m, c: sync.NewCond(&m.mu)}
}

// Wait releases m, suspends the caller until Signal or Broadcast, and
// reacquires m at the caller's previous depth. The caller must hold m;
// otherwise the violation goes to the FailureHandler and Wait returns
// immediately.
//
// As with sync.Cond, wake-ups may be spurious; check the condition in a
// loop. A waiting goroutine still counts as holding m, so Close fails with
// ErrHeld until it has woken and released.
func (c *Cond) Wait() {
	m := c.m
	gid := goid.Current()
	if m.owner.Load() != gid {
		m.fail(m.violation(OpWait, gid, ErrNotOwner))
		return
	}

	depth, site := m.depth.Load(), m.site.Load()
	m.waiters.Add(1)
	m.observeHold()
	m.owner.Store(0)
	m.depth.Store(0)
	m.site.Store(0)

	c.c.Wait()

	m.waiters.Add(-1)
	m.owner.Store(gid)
	m.depth.Store(depth)
	m.site.Store(site)
	if m.options().timed() {
		m.acquiredAt = time.Now()
	}
}

// Signal wakes one waiter, if any.
func (c *Cond) Signal() {
	c.c.Signal()
}

// Broadcast wakes all waiters.
func (c *Cond) Broadcast() {
	c.c.Broadcast()
}
