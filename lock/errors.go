package lock

import (
	"errors"
	"fmt"

	"github.com/kolkov/reclock/internal/report"
)

// Sentinel causes wrapped by [ContractError]. Test with errors.Is.
var (
	// ErrClosed is returned when a closed mutex is acquired.
	ErrClosed = errors.New("mutex is closed")

	// ErrNotOwner is returned when a goroutine releases (or waits on) a
	// mutex it does not hold.
	ErrNotOwner = errors.New("mutex is not held by the caller")

	// ErrHeld is returned when a held mutex is closed.
	ErrHeld = errors.New("mutex is still held")

	// ErrRecursionLimit is returned when the holder re-enters more than
	// MaxDepth times.
	ErrRecursionLimit = errors.New("recursion limit exceeded")

	// ErrGuardReleased is returned when a Guard is released twice.
	ErrGuardReleased = errors.New("guard already released")
)

// Op names the operation that produced a [ContractError].
type Op string

// Operations.
const (
	OpLock    Op = "lock"
	OpTryLock Op = "trylock"
	OpUnlock  Op = "unlock"
	OpRelease Op = "release"
	OpWait    Op = "wait"
	OpClose   Op = "close"
	OpAssert  Op = "assert"
)

// ContractError reports a violated mutex contract.
//
// It is never an expected runtime condition. Seeing one means either the
// caller or the mutex is broken, and continuing with the lock in an unknown
// state invalidates everything it protects.
//
// Example:
//
//	reclock: unlock of mutex "bus" by goroutine 9: mutex is not held by the caller
//
//	Suggestion: Release on the goroutine that acquired the lock.
type ContractError struct {
	Op         Op     // Operation that failed
	Mutex      string // Mutex name, empty if unnamed
	Goroutine  int64  // Calling goroutine
	Owner      int64  // Holding goroutine, 0 if free
	Depth      int32  // Holder's recursion depth
	Site       uint64 // Holder's acquisition site (stackdepot hash), 0 if untracked
	Err        error  // One of the sentinel errors
	Suggestion string // Optional hint for fixing the call site

	stack []uintptr
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	name := "(unnamed)"
	if e.Mutex != "" {
		name = fmt.Sprintf("%q", e.Mutex)
	}
	msg := fmt.Sprintf("reclock: %s of mutex %s by goroutine %d: %v", e.Op, name, e.Goroutine, e.Err)
	if e.Suggestion != "" {
		msg += "\n\nSuggestion: " + e.Suggestion
	}
	return msg
}

// Unwrap returns the sentinel cause.
func (e *ContractError) Unwrap() error {
	return e.Err
}

// Report renders a multi-line report with the violating call's stack and,
// when site tracking is on, where the holder acquired the mutex.
func (e *ContractError) Report() string {
	return e.violation().String()
}

// OwnerSite returns the holder's acquisition site as "function file:line",
// or "" when site tracking is off.
func (e *ContractError) OwnerSite() string {
	return report.SiteFrame(e.Site)
}

func (e *ContractError) violation() *report.Violation {
	return &report.Violation{
		Op:        string(e.Op),
		Mutex:     e.Mutex,
		Goroutine: e.Goroutine,
		Owner:     e.Owner,
		Depth:     e.Depth,
		Message:   e.Err.Error(),
		OwnerSite: e.Site,
		Stack:     e.stack,
	}
}

// logArgs returns the go-hclog key/value pairs describing the violation.
func (e *ContractError) logArgs() []any {
	args := []any{
		"op", string(e.Op),
		"mutex", e.Mutex,
		"goroutine", e.Goroutine,
		"error", e.Err,
	}
	if e.Owner != 0 {
		args = append(args, "owner", e.Owner, "depth", e.Depth)
	}
	if site := e.OwnerSite(); site != "" {
		args = append(args, "owner_site", site)
	}
	return args
}

func suggestionFor(cause error) string {
	switch {
	case errors.Is(cause, ErrNotOwner):
		return "Release on the goroutine that acquired the lock. " +
			"Pair every acquisition with a release in the same function: g, err := lock.Scope(m); defer g.Release()"
	case errors.Is(cause, ErrHeld):
		return "Release every acquisition before closing. " +
			"A Guard released with defer cannot outlive its scope."
	case errors.Is(cause, ErrClosed):
		return "The owner of this mutex closed it; stop using it after Close."
	case errors.Is(cause, ErrRecursionLimit):
		return "Re-entry this deep usually means a call cycle that never unwinds."
	case errors.Is(cause, ErrGuardReleased):
		return "Release a Guard exactly once, normally with defer."
	default:
		return ""
	}
}
