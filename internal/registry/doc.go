// Package registry keeps a shadow table of live mutexes.
//
// A mutex constructed with a registry is added on construction and removed
// on Close. The table answers two questions that the mutex itself cannot:
//
//   - Leaks: how many mutexes were constructed and never closed?
//   - Diagnostics: which of them are held right now, by whom, since where?
//
// Key Concepts:
//
// Entries are keyed by a monotonically increasing ID handed out by Add,
// never by address, so a closed and garbage collected mutex can never alias
// a newer one. The entry value is a Probe: a callback into the owning mutex
// that reports its current state on demand. The table never stores lock
// state itself, keeping the lock fast path free of registry writes.
//
// Thread Safety: all methods are safe for concurrent use.
package registry
