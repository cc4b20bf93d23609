// Package lock provides a recursive mutex with scoped acquisition.
//
// The mutex is meant for callback-driven real-time code (mixing buses,
// command queues) where the goroutine holding a lock may re-enter a code
// path that takes the same lock again. A sync.Mutex deadlocks there; a
// [Mutex] from this package does not.
//
// # Quick Start
//
// Embed a Mutex in the structure it protects and take it through a guard:
//
//	type bus struct {
//		mu       lock.Mutex
//		commands []command
//	}
//
//	func (b *bus) tick() error {
//		g, err := lock.Scope(&b.mu)
//		if err != nil {
//			return err
//		}
//		defer g.Release()
//
//		for _, c := range b.commands {
//			b.apply(c) // may lock b.mu again
//		}
//		b.commands = b.commands[:0]
//		return nil
//	}
//
// Or hand a closure to [Do]:
//
//	err := lock.Do(&b.mu, func() error {
//		b.commands = append(b.commands, c)
//		return nil
//	})
//
// # Contract
//
//   - The zero Mutex is unlocked and ready to use. [New] builds a
//     configured one.
//   - The goroutine holding the mutex may acquire it again and must release
//     it the same number of times.
//   - Only the holder may release. Releasing from another goroutine fails
//     with [ErrNotOwner].
//   - [Mutex.Close] must only be called while nobody holds the mutex.
//     Closing a held mutex fails with [ErrHeld]; every later acquisition
//     fails with [ErrClosed].
//   - Mutex and Guard must not be copied after first use.
//
// # Failures
//
// Every failure is a programming defect, reported as a [*ContractError].
// Methods that return an error ([Mutex.Acquire], [Mutex.Release],
// [Mutex.TryAcquire], [Scope], [Do]) hand it back to the caller. The
// [sync.Locker] style methods ([Mutex.Lock], [Mutex.Unlock],
// [Mutex.TryLock]) and [Mutex.Close], [Guard.Release], [Cond.Wait] pass it
// to the mutex's [FailureHandler]. The default handler logs the violation
// and panics.
//
// Contention is not a failure: [Mutex.TryLock] returns false without
// blocking when another goroutine holds the mutex.
//
// # Build Configuration
//
// The native primitive and the goroutine identity source are selected at
// build time, never by runtime branching:
//
//	go build                  # sync.Mutex + petermattis/goid
//	go build -tags=deadlock   # go-deadlock: lock-order and wait-time reports
//	go build -tags=purego     # goroutine identity from runtime.Stack
//
// # Diagnostics
//
// Runtime diagnostics are configured from the environment with
// [LoadConfig]:
//
//	RECLOCK_TRACK_SITES=1        record where each holder acquired the lock
//	RECLOCK_HOLD_WARNING=2ms     warn when a hold exceeds the budget
//	RECLOCK_LOG_LEVEL=debug      go-hclog level
//	RECLOCK_DEADLOCK_TIMEOUT=5s  go-deadlock wait limit (-tags=deadlock)
//
// Contention and hold-time metrics are emitted through armon/go-metrics
// when a mutex is built with [WithMetrics]. A [Registry] passed with
// [WithRegistry] tracks live mutexes for leak checks.
package lock
