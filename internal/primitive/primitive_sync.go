// Copyright 2025 The reclock Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !deadlock

// Package primitive provides the native, non-recursive lock underneath
// lock.Mutex. The implementation is picked at build time:
//
//   - default: sync.Mutex, zero overhead
//   - -tags=deadlock: github.com/sasha-s/go-deadlock, which reports
//     lock-order inversions and waits longer than a timeout
//
// Recursion and ownership are layered on top by package lock; this package
// only has to provide Lock, Unlock and TryLock with sync.Mutex semantics.
package primitive

import (
	"sync"
	"time"
)

// Detecting is true if the deadlock detector is compiled in.
const Detecting = false

// Name identifies the primitive compiled in.
const Name = "sync.Mutex"

// Mutex is the native lock.
//
//nolint:gocritic // embedding sync.Mutex is intentional, this is the wrapper
type Mutex struct {
	sync.Mutex
}

// SetDeadlockTimeout is a no-op without -tags=deadlock.
func SetDeadlockTimeout(time.Duration) {}
