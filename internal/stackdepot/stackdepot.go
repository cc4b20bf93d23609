// Package stackdepot stores the call sites where mutexes were acquired.
//
// When site tracking is enabled, the outermost acquisition of a lock.Mutex
// records its stack here and keeps only the 64-bit hash. Violation reports
// later turn the hash back into frames, answering "who is holding this and
// where did they take it".
//
// Stacks are deduplicated: a mixing callback that locks the same bus a
// thousand times per second produces one entry, not a thousand.
//
// Design:
//   - Fixed-size traces (MaxFrames program counters)
//   - FNV-1a hash of the program counters as the key
//   - Process-wide sync.Map, safe for concurrent use
//
// Usage:
//
//	hash := stackdepot.Capture(1)
//	...
//	fmt.Print(stackdepot.Get(hash).Format())
package stackdepot

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"
	"sync"
)

// MaxFrames is the number of frames kept per site.
const MaxFrames = 8

// Stack is a captured acquisition site.
type Stack struct {
	PC [MaxFrames]uintptr
}

// Frame is one resolved frame of a Stack.
type Frame struct {
	Function string
	File     string
	Line     int
}

// String returns "function file:line".
func (f Frame) String() string {
	return fmt.Sprintf("%s %s:%d", f.Function, f.File, f.Line)
}

// depot maps hash to *Stack.
var depot sync.Map

// Capture records the caller's stack and returns its hash.
//
// skip counts frames above Capture's caller to omit, so a helper that calls
// Capture on behalf of its own caller passes 1. Returns 0 when no frames are
// available.
func Capture(skip int) uint64 {
	var pcs [MaxFrames]uintptr
	// +2: runtime.Callers and Capture itself.
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return 0
	}

	hash := hashPCs(pcs[:n])
	if _, exists := depot.Load(hash); !exists {
		depot.LoadOrStore(hash, &Stack{PC: pcs})
	}
	return hash
}

// Get returns the stack for hash, or nil if hash is 0 or unknown.
func Get(hash uint64) *Stack {
	if hash == 0 {
		return nil
	}
	val, ok := depot.Load(hash)
	if !ok {
		return nil
	}
	return val.(*Stack)
}

func hashPCs(pcs []uintptr) uint64 {
	h := fnv.New64a()
	var b [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(b[:], uint64(pc))
		_, _ = h.Write(b[:]) // hash.Hash never returns an error
	}
	return h.Sum64()
}

// Frames resolves the stack, dropping runtime frames. A nil Stack has no
// frames.
func (s *Stack) Frames() []Frame {
	if s == nil {
		return nil
	}

	var out []Frame
	frames := runtime.CallersFrames(trimZero(s.PC[:]))
	for {
		frame, more := frames.Next()
		if frame.PC != 0 && !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, Frame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}
		if !more {
			break
		}
	}
	return out
}

// Format renders the stack in the layout of a Go traceback:
//
//	main.(*bus).tick()
//	      /src/bus.go:45
//
// A nil or fully filtered stack renders as a single placeholder line.
func (s *Stack) Format() string {
	if s == nil {
		return "  <unknown>\n"
	}

	var buf strings.Builder
	for _, f := range s.Frames() {
		fmt.Fprintf(&buf, "  %s()\n", f.Function)
		fmt.Fprintf(&buf, "      %s:%d\n", f.File, f.Line)
	}
	if buf.Len() == 0 {
		return "  <runtime internal>\n"
	}
	return buf.String()
}

func trimZero(pcs []uintptr) []uintptr {
	for i, pc := range pcs {
		if pc == 0 {
			return pcs[:i]
		}
	}
	return pcs
}

// Reset empties the depot. Test use only; not safe while other goroutines
// capture.
func Reset() {
	depot = sync.Map{}
}

// Len returns the number of distinct stacks stored.
func Len() int {
	n := 0
	depot.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
