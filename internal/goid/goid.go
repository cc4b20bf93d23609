// Copyright 2025 The reclock Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package goid reports the identity of the calling goroutine.
//
// Ownership of a recursive mutex is keyed by goroutine, so every lock and
// unlock asks "who am I". The answer comes from one of two implementations
// chosen at build time:
//
//   - goid_fast.go: github.com/petermattis/goid (default, ~1-2ns)
//   - goid_purego.go: runtime.Stack parsing (-tags=purego, ~1500ns)
//
// Both return the same value the runtime prints in "goroutine N [running]".
// IDs are always positive; 0 means "no goroutine" and is used by callers as
// the unowned sentinel.
package goid

import "runtime"

// Current returns the ID of the calling goroutine.
func Current() int64 {
	return currentFast()
}

// currentSlow extracts the goroutine ID by parsing runtime.Stack output.
//
// Stack trace format: "goroutine 123 [running]:\n..."
//
// It works on every Go version and architecture and is kept available in
// all builds so tests can cross-check the fast path.
func currentSlow() int64 {
	// Only the first line is needed.
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the goroutine ID from stack trace bytes.
//
// Expected format: "goroutine 123 [running]:..."
// Returns 0 if the prefix is missing or no digits follow it.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	const prefixLen = len(prefix)

	if len(buf) < prefixLen || string(buf[:prefixLen]) != prefix {
		return 0
	}

	var gid int64
	for i := prefixLen; i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}
