package lock

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/kolkov/reclock/internal/goid"
	"github.com/kolkov/reclock/internal/primitive"
	"github.com/kolkov/reclock/internal/registry"
	"github.com/kolkov/reclock/internal/report"
	"github.com/kolkov/reclock/internal/stackdepot"
)

// MaxDepth is the deepest re-entry a holder may reach.
const MaxDepth = math.MaxInt32

// Mutex is a recursive mutual exclusion lock.
//
// The goroutine holding a Mutex may lock it again without blocking and must
// unlock it as many times as it locked it. Other goroutines block until the
// depth returns to zero. There is no fairness: any waiter may win.
//
// The zero value is an unlocked mutex using default options. A Mutex must
// not be copied after first use.
//
// Mutex implements [sync.Locker].
type Mutex struct {
	_ noCopy

	mu primitive.Mutex

	// owner is the holding goroutine, 0 when free. Written only while mu is
	// held; read by anyone. A goroutine compares it with its own ID, and no
	// other goroutine can store that ID, so the comparison is race free.
	owner atomic.Int64
	depth atomic.Int32
	site  atomic.Uint64

	closed atomic.Bool

	// waiters counts goroutines parked in Cond.Wait. They hold m logically
	// while the primitive is released. Changed only with mu held.
	waiters atomic.Int32

	// acquiredAt is touched only by the holder.
	acquiredAt time.Time

	opts  *options
	regID uint64
}

// New returns an unlocked mutex configured by opts.
//
// Invalid options (a nil logger, a negative hold budget) panic: a lock that
// cannot report its own failures must not be handed out.
func New(opts ...Option) *Mutex {
	o := mustOptions(opts...)
	m := &Mutex{opts: o}
	if o.registry != nil {
		m.regID = o.registry.tbl().Add(m.probe)
	}
	o.logger.Trace("mutex created", "mutex", o.name)
	return m
}

func (m *Mutex) options() *options {
	if m.opts == nil {
		return defaults
	}
	return m.opts
}

// Name returns the name given with WithName.
func (m *Mutex) Name() string {
	return m.options().name
}

// Acquire locks m, blocking until it is available. The holder re-enters
// immediately.
//
// It fails with ErrClosed on a closed mutex and ErrRecursionLimit past
// MaxDepth. Either way the caller does not hold the lock.
func (m *Mutex) Acquire() error {
	if err := m.acquire(OpLock); err != nil {
		return err
	}
	return nil
}

// Lock is Acquire for [sync.Locker] callers; failures go to the
// FailureHandler.
func (m *Mutex) Lock() {
	if err := m.acquire(OpLock); err != nil {
		m.fail(err)
	}
}

func (m *Mutex) acquire(op Op) *ContractError {
	gid := goid.Current()
	if m.owner.Load() == gid {
		return m.reenter(op, gid)
	}
	if m.closed.Load() {
		return m.violation(op, gid, ErrClosed)
	}

	if !m.mu.TryLock() {
		m.count(keyContended)
		m.mu.Lock()
	}
	// Close may have won while we waited.
	if m.closed.Load() {
		m.mu.Unlock()
		return m.violation(op, gid, ErrClosed)
	}
	m.acquired(gid)
	return nil
}

// TryAcquire locks m if that is possible without blocking. Contention
// returns (false, nil). The holder re-enters and gets true.
func (m *Mutex) TryAcquire() (bool, error) {
	ok, err := m.tryAcquire()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// TryLock is TryAcquire for callers following the sync package; failures
// go to the FailureHandler and report false.
func (m *Mutex) TryLock() bool {
	ok, err := m.tryAcquire()
	if err != nil {
		m.fail(err)
		return false
	}
	return ok
}

func (m *Mutex) tryAcquire() (bool, *ContractError) {
	gid := goid.Current()
	if m.owner.Load() == gid {
		if err := m.reenter(OpTryLock, gid); err != nil {
			return false, err
		}
		return true, nil
	}
	if m.closed.Load() {
		return false, m.violation(OpTryLock, gid, ErrClosed)
	}

	if !m.mu.TryLock() {
		m.count(keyTryFailed)
		return false, nil
	}
	if m.closed.Load() {
		m.mu.Unlock()
		return false, m.violation(OpTryLock, gid, ErrClosed)
	}
	m.acquired(gid)
	return true, nil
}

func (m *Mutex) reenter(op Op, gid int64) *ContractError {
	if m.depth.Load() >= MaxDepth {
		return m.violation(op, gid, ErrRecursionLimit)
	}
	m.depth.Add(1)
	return nil
}

// acquired records gid as the holder after mu was taken.
func (m *Mutex) acquired(gid int64) {
	m.owner.Store(gid)
	m.depth.Store(1)

	o := m.options()
	if o.trackSites {
		m.site.Store(stackdepot.Capture(1))
	}
	if o.timed() {
		m.acquiredAt = time.Now()
	}
}

// Release undoes one acquisition by the calling goroutine. The last one
// unlocks m. A goroutine that does not hold m gets ErrNotOwner and m is
// left untouched.
func (m *Mutex) Release() error {
	if err := m.release(OpUnlock); err != nil {
		return err
	}
	return nil
}

// Unlock is Release for [sync.Locker] callers; failures go to the
// FailureHandler.
func (m *Mutex) Unlock() {
	if err := m.release(OpUnlock); err != nil {
		m.fail(err)
	}
}

func (m *Mutex) release(op Op) *ContractError {
	gid := goid.Current()
	if m.owner.Load() != gid {
		return m.violation(op, gid, ErrNotOwner)
	}
	if m.depth.Add(-1) > 0 {
		return nil
	}
	m.observeHold()
	m.owner.Store(0)
	m.site.Store(0)
	m.mu.Unlock()
	return nil
}

// observeHold accounts for an outermost hold ending.
func (m *Mutex) observeHold() {
	o := m.options()
	if !o.timed() {
		return
	}
	held := time.Since(m.acquiredAt)
	if o.metrics != nil {
		o.metrics.MeasureSinceWithLabels(keyHeld, m.acquiredAt, o.labels)
	}
	if o.holdWarning > 0 && held > o.holdWarning {
		o.logger.Warn("mutex held past budget",
			"mutex", o.name,
			"held", held,
			"budget", o.holdWarning,
		)
	}
}

func (m *Mutex) count(key []string) {
	if o := m.options(); o.metrics != nil {
		o.metrics.IncrCounterWithLabels(key, 1, o.labels)
	}
}

// HeldByCurrent reports whether the calling goroutine holds m.
func (m *Mutex) HeldByCurrent() bool {
	return m.owner.Load() == goid.Current()
}

// AssertHeld reports a violation to the FailureHandler unless the calling
// goroutine holds m. Use it at the top of functions documented as "must be
// called with m held".
func (m *Mutex) AssertHeld() {
	gid := goid.Current()
	if m.owner.Load() != gid {
		m.fail(m.violation(OpAssert, gid, ErrNotOwner))
	}
}

// Close retires m. It must only be called while no goroutine holds m,
// including goroutines waiting on a Cond bound to m; otherwise the
// violation (ErrHeld) goes to the FailureHandler and is returned, and m
// stays usable. After Close every acquisition fails with ErrClosed.
// Closing twice is a no-op.
func (m *Mutex) Close() error {
	if m.closed.Load() {
		return nil
	}
	gid := goid.Current()
	// The primitive is not recursive: a holder must not try to take it.
	if m.owner.Load() != 0 {
		return m.closeHeld(gid)
	}
	if !m.mu.TryLock() {
		return m.closeHeld(gid)
	}
	if m.waiters.Load() > 0 {
		m.mu.Unlock()
		return m.closeHeld(gid)
	}
	defer m.mu.Unlock()

	if m.closed.Swap(true) {
		return nil
	}
	o := m.options()
	if o.registry != nil && m.regID != 0 {
		o.registry.tbl().Remove(m.regID)
	}
	o.logger.Trace("mutex closed", "mutex", o.name)
	return nil
}

func (m *Mutex) closeHeld(gid int64) error {
	err := m.violation(OpClose, gid, ErrHeld)
	m.fail(err)
	return err
}

func (m *Mutex) probe() registry.State {
	return registry.State{
		Name:  m.Name(),
		Owner: m.owner.Load(),
		Depth: m.depth.Load(),
		Site:  m.site.Load(),
	}
}

func (m *Mutex) violation(op Op, gid int64, cause error) *ContractError {
	return &ContractError{
		Op:         op,
		Mutex:      m.Name(),
		Goroutine:  gid,
		Owner:      m.owner.Load(),
		Depth:      m.depth.Load(),
		Site:       m.site.Load(),
		Err:        cause,
		Suggestion: suggestionFor(cause),
		stack:      report.CaptureStack(1),
	}
}

func (m *Mutex) fail(err *ContractError) {
	m.options().onFailure(err)
}

// noCopy lets go vet's copylocks check flag copies of the types embedding
// it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
