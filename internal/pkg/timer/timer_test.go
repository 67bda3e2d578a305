//
// Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package timer

import (
	"testing"
	"time"
)

func TestTimer(t *testing.T) {
	h := Start()
	time.Sleep(10 * time.Millisecond)
	str := h.Stop()
	if str == "" {
		t.Fatalf("empty duration")
	}
	d := h.Elapsed()
	if d < 10*time.Millisecond {
		t.Fatalf("duration is %s", d)
	}
	time.Sleep(5 * time.Millisecond)
	if h.Elapsed() != d || h.Stop() != str {
		t.Fatalf("stopped timer is still running")
	}
}
