package syncq

import (
	"fmt"
	"sync/atomic"

	"github.com/kolkov/reclock/lock"
)

// SwapType selects the side a Swapper plays.
type SwapType int

const (
	// SwapRead waits for slots the writer has filled.
	SwapRead SwapType = iota
	// SwapWrite waits for slots the reader has consumed.
	SwapWrite
)

func (t SwapType) String() string {
	switch t {
	case SwapRead:
		return "read"
	case SwapWrite:
		return "write"
	default:
		return fmt.Sprintf("SwapType(%d)", int(t))
	}
}

func (t SwapType) other() SwapType {
	return 1 - t
}

type slot[T any] struct {
	mu   *lock.Mutex
	cond *lock.Cond
	// ready[t] is set when the slot may be taken by the SwapType t side.
	ready [2]bool
	value T
}

// publish runs fn under the slot lock, then wakes the slot's waiters.
func (s *slot[T]) publish(fn func()) {
	_ = lock.Do(s.mu, func() error {
		fn()
		return nil
	})
	s.cond.Broadcast()
}

// Ring is a fixed circle of slots handed back and forth between a reader
// and a writer.
type Ring[T any] struct {
	slots  []*slot[T]
	closed atomic.Bool
}

// NewRing returns a ring of count slots. count must be at least 2. opts
// configure each slot's mutex.
//
// The writer starts on slot 0 and the reader on the last slot; the slots
// in between start empty and writable.
func NewRing[T any](count int, opts ...lock.Option) *Ring[T] {
	if count < 2 {
		panic(fmt.Sprintf("syncq: ring needs at least 2 slots, got %d", count))
	}
	r := &Ring[T]{slots: make([]*slot[T], count)}
	for i := range r.slots {
		mu := lock.New(opts...)
		s := &slot[T]{mu: mu, cond: lock.NewCond(mu)}
		s.ready[SwapWrite] = i > 0 && i < count-1
		r.slots[i] = s
	}
	return r
}

// Len returns the number of slots.
func (r *Ring[T]) Len() int {
	return len(r.slots)
}

// Writer returns the writer's cursor, on slot 0.
func (r *Ring[T]) Writer() *Swapper[T] {
	return r.Swapper(0)
}

// Reader returns the reader's cursor, on the last slot.
func (r *Ring[T]) Reader() *Swapper[T] {
	return r.Swapper(len(r.slots) - 1)
}

// Swapper returns a cursor positioned on slot start. Most callers want
// Writer and Reader.
func (r *Ring[T]) Swapper(start int) *Swapper[T] {
	if start < 0 || start >= len(r.slots) {
		panic(fmt.Sprintf("syncq: swapper start %d out of range [0,%d)", start, len(r.slots)))
	}
	return &Swapper[T]{ring: r, current: start}
}

// Close wakes every blocked Swap. Swaps after Close return nil.
func (r *Ring[T]) Close() {
	if r.closed.Swap(true) {
		return
	}
	for _, s := range r.slots {
		// Waiters check closed under the slot lock.
		s.publish(func() {})
	}
}

// Swapper is one side's position in a Ring. It is owned by a single
// goroutine.
type Swapper[T any] struct {
	ring    *Ring[T]
	current int
}

// Get returns the current slot's value.
func (s *Swapper[T]) Get() *T {
	return &s.ring.slots[s.current].value
}

// Current returns the index of the current slot.
func (s *Swapper[T]) Current() int {
	return s.current
}

// Swap hands the current slot to the other side, then blocks until the
// next slot is handed to this side and moves onto it. It returns nil if
// the ring is closed.
func (s *Swapper[T]) Swap(kind SwapType) *T {
	cur := s.ring.slots[s.current]
	cur.publish(func() { cur.ready[kind.other()] = true })

	idx := (s.current + 1) % len(s.ring.slots)
	next := s.ring.slots[idx]

	next.mu.Lock()
	defer next.mu.Unlock()
	for !next.ready[kind] {
		if s.ring.closed.Load() {
			return nil
		}
		next.cond.Wait()
	}
	next.ready[kind] = false
	s.current = idx
	return &next.value
}
