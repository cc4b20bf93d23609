package lock

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time check: Mutex is a sync.Locker.
var _ sync.Locker = (*Mutex)(nil)

func TestMutex_ZeroValue(t *testing.T) {
	var mu Mutex

	assert.False(t, mu.HeldByCurrent())
	mu.Lock()
	assert.True(t, mu.HeldByCurrent())
	mu.Unlock()
	assert.False(t, mu.HeldByCurrent())
	assert.Empty(t, mu.Name())
}

// TestMutex_RecursiveBalanced: N locks followed by N unlocks leave the
// mutex acquirable by another goroutine.
func TestMutex_RecursiveBalanced(t *testing.T) {
	for _, n := range []int{1, 2, 10, 1000} {
		mu, rec := recorded()

		for i := 0; i < n; i++ {
			require.NoError(t, mu.Acquire())
		}
		for i := 0; i < n; i++ {
			require.NoError(t, mu.Release())
		}

		var acquired bool
		inOtherGoroutine(func() {
			acquired = mu.TryLock()
			if acquired {
				mu.Unlock()
			}
		})
		assert.True(t, acquired, "n=%d", n)
		assert.Zero(t, rec.count())
	}
}

// TestMutex_ReentryBlocksOthersUntilBalanced: the holder re-enters without
// blocking, and another goroutine gets the lock only after the last release.
func TestMutex_ReentryBlocksOthersUntilBalanced(t *testing.T) {
	mu, _ := recorded()

	mu.Lock()
	mu.Lock()

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		close(acquired)
		mu.Unlock()
	}()

	mu.Unlock()
	assert.Never(t, func() bool {
		select {
		case <-acquired:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond, "waiter acquired while depth was still 1")

	mu.Unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter did not acquire after the final unlock")
	}
}

func TestMutex_ReentryDoesNotBlock(t *testing.T) {
	mu, _ := recorded()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			mu.Lock()
		}
		for i := 0; i < 5; i++ {
			mu.Unlock()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-entrant locking blocked")
	}
}

// TestMutex_MutualExclusion: at most one goroutine is inside the critical
// section at any instant.
func TestMutex_MutualExclusion(t *testing.T) {
	const (
		goroutines = 8
		iterations = 500
	)
	mu, rec := recorded()

	var (
		inside  int
		maxSeen int
		total   int
		wg      sync.WaitGroup
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				err := Do(mu, func() error {
					inside++
					maxSeen = max(maxSeen, inside)
					// Nested acquisition inside the critical section.
					_ = Do(mu, func() error {
						total++
						return nil
					})
					inside--
					return nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, goroutines*iterations, total)
	assert.Zero(t, rec.count())
}

// TestMutex_TryLockDoesNotBlock: TryLock on a mutex held elsewhere returns
// false promptly.
func TestMutex_TryLockDoesNotBlock(t *testing.T) {
	mu, rec := recorded()

	held := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		mu.Lock()
		close(held)
		<-release
		mu.Unlock()
	}()
	<-held

	start := time.Now()
	ok := mu.TryLock()
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 10*time.Millisecond)

	ok, err := mu.TryAcquire()
	assert.False(t, ok)
	assert.NoError(t, err, "contention is not an error")

	close(release)
	<-finished
	assert.True(t, mu.TryLock())
	mu.Unlock()
	assert.Zero(t, rec.count())
}

func TestMutex_TryLockReenters(t *testing.T) {
	mu, _ := recorded()

	require.True(t, mu.TryLock())
	require.True(t, mu.TryLock())
	mu.Unlock()
	assert.True(t, mu.HeldByCurrent())
	mu.Unlock()
	assert.False(t, mu.HeldByCurrent())
}

func TestMutex_ReleaseByNonOwner(t *testing.T) {
	mu, _ := recorded(WithName("bus"))
	mu.Lock()
	defer mu.Unlock()

	var err error
	var gid int64
	inOtherGoroutine(func() {
		err = mu.Release()
		gid = currentGoroutine()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotOwner)

	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, OpUnlock, ce.Op)
	assert.Equal(t, "bus", ce.Mutex)
	assert.Equal(t, gid, ce.Goroutine)
	assert.Equal(t, currentGoroutine(), ce.Owner)
	assert.Equal(t, int32(1), ce.Depth)

	// The holder is unaffected.
	assert.True(t, mu.HeldByCurrent())
}

func TestMutex_UnlockUnlocked_Fatal(t *testing.T) {
	mu := New(quiet())

	defer func() {
		r := recover()
		require.NotNil(t, r, "Unlock of an unlocked mutex must be fatal")
		err, ok := r.(*ContractError)
		require.True(t, ok, "panic value %T", r)
		assert.ErrorIs(t, err, ErrNotOwner)
		assert.Zero(t, err.Owner)
	}()
	mu.Unlock()
}

func TestMutex_UnlockUnlocked_Handler(t *testing.T) {
	mu, rec := recorded()

	mu.Unlock()
	require.Equal(t, 1, rec.count())
	assert.ErrorIs(t, rec.last(), ErrNotOwner)

	// The failed call left the mutex usable.
	mu.Lock()
	mu.Unlock()
	assert.Equal(t, 1, rec.count())
}

func TestMutex_RecursionLimit(t *testing.T) {
	mu, rec := recorded()

	mu.Lock()
	mu.depth.Store(MaxDepth)

	err := mu.Acquire()
	assert.ErrorIs(t, err, ErrRecursionLimit)

	ok, err := mu.TryAcquire()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrRecursionLimit)

	mu.Lock()
	assert.ErrorIs(t, rec.last(), ErrRecursionLimit)

	mu.depth.Store(1)
	mu.Unlock()
	assert.False(t, mu.HeldByCurrent())
}

func TestMutex_Close(t *testing.T) {
	mu, rec := recorded()

	mu.Lock()
	mu.Unlock()
	require.NoError(t, mu.Close())

	assert.ErrorIs(t, mu.Acquire(), ErrClosed)

	ok, err := mu.TryAcquire()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosed)

	mu.Lock()
	assert.ErrorIs(t, rec.last(), ErrClosed)

	// Closing again is a no-op.
	assert.NoError(t, mu.Close())
}

func TestMutex_CloseWhileHeld(t *testing.T) {
	mu, rec := recorded(WithName("table"))

	mu.Lock()
	err := mu.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHeld)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, OpClose, rec.last().Op)

	// Still usable.
	mu.Lock()
	mu.Unlock()
	mu.Unlock()

	assert.NoError(t, mu.Close())
}

// TestMutex_CloseFromHolder: the holder closing its own mutex is reported
// at any depth without touching the primitive, so the deadlock build
// reports it the same way.
func TestMutex_CloseFromHolder(t *testing.T) {
	mu, rec := recorded(WithName("bus"))

	g, err := Scope(mu)
	require.NoError(t, err)
	require.NoError(t, mu.Acquire())
	require.NoError(t, mu.Acquire())

	for i := 1; i <= 2; i++ {
		err := mu.Close()
		assert.ErrorIs(t, err, ErrHeld)
		assert.Equal(t, i, rec.count())
	}
	ce := rec.last()
	assert.Equal(t, currentGoroutine(), ce.Owner)
	assert.Equal(t, int32(3), ce.Depth)
	assert.True(t, mu.HeldByCurrent())

	require.NoError(t, mu.Release())
	require.NoError(t, mu.Release())
	g.Release()

	require.NoError(t, mu.Close())
	assert.ErrorIs(t, mu.Acquire(), ErrClosed)
	assert.Equal(t, 2, rec.count())
}

func TestMutex_CloseWhileHeldElsewhere(t *testing.T) {
	mu, _ := recorded()

	held := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		mu.Lock()
		close(held)
		<-release
		mu.Unlock()
	}()
	<-held

	assert.ErrorIs(t, mu.Close(), ErrHeld)
	close(release)
	<-finished
	assert.NoError(t, mu.Close())
}

// TestMutex_ConstructCloseCycles: repeated construct/close cycles leave
// nothing behind.
func TestMutex_ConstructCloseCycles(t *testing.T) {
	reg := NewRegistry()

	for i := 0; i < 1000; i++ {
		mu := New(quiet(), WithRegistry(reg))
		mu.Lock()
		mu.Unlock()
		require.NoError(t, mu.Close())
	}
	assert.Zero(t, reg.Live())
	assert.Empty(t, reg.Mutexes())
}

func TestMutex_AssertHeld(t *testing.T) {
	mu, rec := recorded()

	mu.AssertHeld()
	require.Equal(t, 1, rec.count())
	assert.Equal(t, OpAssert, rec.last().Op)

	mu.Lock()
	mu.AssertHeld()
	mu.Unlock()
	assert.Equal(t, 1, rec.count())
}

func TestMutex_SiteTracking(t *testing.T) {
	mu, _ := recorded(WithSiteTracking(true), WithName("bus"))
	lockForSiteTest(mu)
	defer mu.Unlock()

	var err error
	inOtherGoroutine(func() {
		err = mu.Release()
	})

	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.OwnerSite(), "lockForSiteTest")

	rep := ce.Report()
	assert.Contains(t, rep, "RECLOCK: CONTRACT VIOLATION")
	assert.Contains(t, rep, `unlock of mutex "bus"`)
	assert.Contains(t, rep, "lockForSiteTest()")
}

func lockForSiteTest(mu *Mutex) {
	mu.Lock()
}

func TestMutex_SiteClearedOnRelease(t *testing.T) {
	mu, _ := recorded(WithSiteTracking(true))

	mu.Lock()
	assert.NotZero(t, mu.site.Load())
	mu.Unlock()
	assert.Zero(t, mu.site.Load())
}

func TestMutex_Metrics(t *testing.T) {
	sink := metrics.NewInmemSink(time.Minute, time.Minute)
	cfg := metrics.DefaultConfig("reclock")
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	met, err := metrics.New(cfg, sink)
	require.NoError(t, err)

	mu, _ := recorded(WithName("bus"), WithMetrics(met))

	mu.Lock()
	inOtherGoroutine(func() {
		assert.False(t, mu.TryLock())
	})

	acquired := make(chan struct{})
	go func() {
		mu.Lock()
		mu.Unlock()
		close(acquired)
	}()
	require.Eventually(t, func() bool {
		return counterValue(sink, "reclock.lock.contended;mutex=bus") == 1
	}, time.Second, time.Millisecond)
	mu.Unlock()
	<-acquired

	assert.Equal(t, 1, counterValue(sink, "reclock.lock.try_failed;mutex=bus"))

	data := sink.Data()
	require.NotEmpty(t, data)
	held, ok := data[len(data)-1].Samples["reclock.lock.held;mutex=bus"]
	require.True(t, ok, "hold time not sampled")
	assert.Equal(t, 2, held.Count)
}

func counterValue(sink *metrics.InmemSink, key string) int {
	data := sink.Data()
	if len(data) == 0 {
		return 0
	}
	v, ok := data[len(data)-1].Counters[key]
	if !ok {
		return 0
	}
	return v.Count
}

func TestMutex_HoldWarning(t *testing.T) {
	var buf syncBuffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Warn})

	mu := New(WithLogger(logger), WithName("bus"), WithHoldWarning(time.Millisecond))

	mu.Lock()
	time.Sleep(5 * time.Millisecond)
	mu.Unlock()
	assert.Contains(t, buf.String(), "mutex held past budget")
	assert.Contains(t, buf.String(), "mutex=bus")

	buf.Reset()
	mu.Lock()
	mu.Unlock()
	// Only outermost holds count; nothing near the budget here.
	assert.NotContains(t, buf.String(), "past budget")
}

func TestNew_InvalidOptions(t *testing.T) {
	assert.Panics(t, func() { New(WithLogger(nil)) })
	assert.Panics(t, func() { New(WithHoldWarning(-time.Second)) })
}

func TestFatal_LogsBeforePanicking(t *testing.T) {
	var buf syncBuffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Error})
	mu := New(WithLogger(logger), WithName("bus"))

	assert.Panics(t, func() { mu.Unlock() })
	assert.Contains(t, buf.String(), "mutex contract violation")
	assert.Contains(t, buf.String(), "op=unlock")
}

func TestContractError_IsAndAs(t *testing.T) {
	mu, _ := recorded()
	err := mu.Release()

	assert.True(t, errors.Is(err, ErrNotOwner))
	assert.False(t, errors.Is(err, ErrClosed))
}

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}
