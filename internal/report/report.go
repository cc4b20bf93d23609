// Package report renders mutex contract violations.
//
// A violation is a programming defect (unlock by a goroutine that does not
// own the lock, closing a held mutex, and so on). The report mirrors the
// layout of a Go race report so it reads naturally next to one:
//
//	==================
//	RECLOCK: CONTRACT VIOLATION
//	unlock of mutex "bus" by goroutine 9: mutex is not held by the caller
//	  main.(*bus).stop()
//	      /src/bus.go:88
//
//	Held by goroutine 7 (depth 2), acquired at:
//	  main.(*bus).tick()
//	      /src/bus.go:45
//	==================
package report

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/kolkov/reclock/internal/stackdepot"
)

// maxStackDepth bounds the stack captured for the violating call.
const maxStackDepth = 32

// Violation describes one contract violation.
type Violation struct {
	// Op is the operation that failed ("lock", "unlock", "close", ...).
	Op string

	// Mutex is the mutex name, empty if unnamed.
	Mutex string

	// Goroutine is the ID of the goroutine that made the call.
	Goroutine int64

	// Owner is the ID of the goroutine holding the mutex, 0 if free.
	Owner int64

	// Depth is the owner's recursion depth at the time of the call.
	Depth int32

	// Message is the human readable cause.
	Message string

	// OwnerSite is the stackdepot hash of the owner's outermost
	// acquisition, 0 when site tracking is off.
	OwnerSite uint64

	// Stack holds the program counters of the violating call.
	Stack []uintptr
}

// CaptureStack returns the program counters of the caller's stack, skipping
// skip frames above the caller.
func CaptureStack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// +2: runtime.Callers and CaptureStack.
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// Format writes the report to w.
//
//nolint:errcheck // best effort diagnostics
func (v *Violation) Format(w io.Writer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "RECLOCK: CONTRACT VIOLATION\n")
	fmt.Fprintf(w, "%s of mutex %s by goroutine %d: %s\n", v.Op, v.name(), v.Goroutine, v.Message)
	fmt.Fprint(w, formatStack(v.Stack))

	if v.Owner != 0 {
		fmt.Fprintf(w, "\nHeld by goroutine %d (depth %d), acquired at:\n", v.Owner, v.Depth)
		if v.OwnerSite != 0 {
			fmt.Fprint(w, formatSite(v.OwnerSite))
		} else {
			fmt.Fprintf(w, "  (site tracking disabled, set RECLOCK_TRACK_SITES=1)\n")
		}
	}
	fmt.Fprintf(w, "==================\n")
}

// String returns the formatted report.
func (v *Violation) String() string {
	var buf strings.Builder
	v.Format(&buf)
	return buf.String()
}

// OwnerFrame returns the innermost user frame of the owner's acquisition
// site as "function file:line", or "" when unknown. Used as a compact log
// field.
func (v *Violation) OwnerFrame() string {
	return SiteFrame(v.OwnerSite)
}

// SiteFrame returns the innermost user frame of a stored acquisition site
// as "function file:line", or "" when hash is 0 or unknown.
func SiteFrame(hash uint64) string {
	for _, f := range stackdepot.Get(hash).Frames() {
		if !internalFrame(f.Function) {
			return f.String()
		}
	}
	return ""
}

func (v *Violation) name() string {
	if v.Mutex == "" {
		return "(unnamed)"
	}
	return fmt.Sprintf("%q", v.Mutex)
}

// formatStack renders pcs, hiding runtime frames and the lock package's
// own frames so the first line is the caller's code.
func formatStack(pcs []uintptr) string {
	if len(pcs) == 0 {
		return "  (no stack trace captured)\n"
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		if !internalFrame(frame.Function) {
			fmt.Fprintf(&buf, "  %s()\n", frame.Function)
			fmt.Fprintf(&buf, "      %s:%d\n", frame.File, frame.Line)
		}
		if !more {
			break
		}
	}

	if buf.Len() == 0 {
		return "  (all frames filtered)\n"
	}
	return buf.String()
}

// internalPrefixes are the frames of the locking machinery itself.
var internalPrefixes = []string{
	"runtime.",
	"github.com/kolkov/reclock/lock.(*",
	"github.com/kolkov/reclock/lock.Scope",
	"github.com/kolkov/reclock/lock.Do",
	"github.com/kolkov/reclock/internal/report.CaptureStack",
}

// formatSite renders a stored acquisition site without the lock package's
// own frames.
func formatSite(hash uint64) string {
	var buf strings.Builder
	for _, f := range stackdepot.Get(hash).Frames() {
		if internalFrame(f.Function) {
			continue
		}
		fmt.Fprintf(&buf, "  %s()\n", f.Function)
		fmt.Fprintf(&buf, "      %s:%d\n", f.File, f.Line)
	}
	if buf.Len() == 0 {
		return "  <unknown>\n"
	}
	return buf.String()
}

func internalFrame(fn string) bool {
	for _, p := range internalPrefixes {
		if strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}
