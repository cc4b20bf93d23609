// Copyright 2025 The reclock Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package goid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrent_Basic(t *testing.T) {
	gid := Current()
	require.Positive(t, gid)

	// Stable within a goroutine.
	assert.Equal(t, gid, Current())
}

// TestCurrent_FastVsSlow validates both paths agree. If they do not, mutex
// ownership checks would misattribute the holder.
func TestCurrent_FastVsSlow(t *testing.T) {
	assert.Equal(t, currentSlow(), currentFast())
}

func TestCurrent_MultipleGoroutines(t *testing.T) {
	const numGoroutines = 100

	gids := make(chan int64, numGoroutines)
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gids <- Current()
		}()
	}
	wg.Wait()
	close(gids)

	seen := make(map[int64]bool, numGoroutines)
	for gid := range gids {
		assert.Positive(t, gid)
		assert.False(t, seen[gid], "duplicate goroutine ID %d", gid)
		seen[gid] = true
	}
	assert.Len(t, seen, numGoroutines)
	assert.NotContains(t, seen, Current(), "child goroutines must not share the parent's ID")
}

func TestCurrent_Concurrent(t *testing.T) {
	const numGoroutines = 50
	const numIterations = 1000

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			expected := Current()
			for j := 0; j < numIterations; j++ {
				if gid := Current(); gid != expected {
					t.Errorf("goroutine ID changed: expected %d, got %d", expected, gid)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestParseGID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"running", "goroutine 123 [running]:\nmain.main()", 123},
		{"single digit", "goroutine 1 [running]:", 1},
		{"large", "goroutine 9876543210 [chan receive]:", 9876543210},
		{"no digits", "goroutine [running]:", 0},
		{"wrong prefix", "thread 12 [running]:", 0},
		{"too short", "gorou", 0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseGID([]byte(tt.in)))
		})
	}
}

func BenchmarkCurrent(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Current()
	}
}

func BenchmarkCurrentSlow(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = currentSlow()
	}
}
