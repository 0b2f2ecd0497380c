// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package plugin

import (
	"testing"
	"time"
)

func TestCrashWindowExpires(t *testing.T) {
	cw := newCrashWindow()
	if n := cw.record(20 * time.Millisecond); n != 1 {
		t.Fatalf("first record = %d, want 1", n)
	}
	if n := cw.record(20 * time.Millisecond); n != 2 {
		t.Fatalf("second record = %d, want 2", n)
	}
	time.Sleep(30 * time.Millisecond)
	if n := cw.record(20 * time.Millisecond); n != 1 {
		t.Fatalf("record after window expiry = %d, want 1 (earlier crashes aged out)", n)
	}
}

func TestCrashWindowQuarantineThreshold(t *testing.T) {
	cw := newCrashWindow()
	window := time.Second
	var last int
	for i := 0; i < DefaultQuarantineThreshold; i++ {
		last = cw.record(window)
	}
	if last != DefaultQuarantineThreshold {
		t.Fatalf("after %d crashes, count = %d", DefaultQuarantineThreshold, last)
	}
}
