// Copyright 2025 The reclock Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build deadlock

// Package primitive provides the native, non-recursive lock underneath
// lock.Mutex. This build uses go-deadlock for development runs.
package primitive

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// Detecting is true if the deadlock detector is compiled in.
const Detecting = true

// Name identifies the primitive compiled in.
const Name = "go-deadlock"

func init() {
	deadlock.Opts.DeadlockTimeout = 30 * time.Second
}

// Mutex is the native lock, instrumented by go-deadlock.
type Mutex struct {
	deadlock.Mutex
}

// SetDeadlockTimeout changes how long a goroutine may wait for a lock
// before go-deadlock reports it. Zero disables the timeout check.
func SetDeadlockTimeout(d time.Duration) {
	deadlock.Opts.DeadlockTimeout = d
}
