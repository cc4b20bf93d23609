// Copyright 2025 The reclock Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build purego

// Stack parsing goroutine identity for builds that must avoid runtime
// internals (-tags=purego): unverified Go releases, exotic GOARCH values,
// or sandboxes that reject assembly.

package goid

// Source names the identity implementation compiled in.
const Source = "runtime.Stack"

// currentFast delegates to the stack parser. The name is kept so Current
// does not depend on the build configuration.
func currentFast() int64 {
	return currentSlow()
}
