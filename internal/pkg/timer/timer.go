//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package timer

import "time"

// Handle is a structure gathering all the data necessary to implement timers
type Handle struct {
	start time.Time
	end   time.Time
}

// Start creates and start a timer
func Start() *Handle {
	h := new(Handle)
	h.start = time.Now()
	return h
}

// Elapsed returns the time since the timer started, or the total duration
// if the timer has been stopped
func (h *Handle) Elapsed() time.Duration {
	if h.end.IsZero() {
		return time.Since(h.start)
	}
	return h.end.Sub(h.start)
}

// Stop ends a timer and returns the time in the form of a string
func (h *Handle) Stop() string {
	if h.end.IsZero() {
		h.end = time.Now()
	}
	return h.Elapsed().String()
}
