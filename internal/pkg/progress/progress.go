//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package progress

import (
	"fmt"
	"io"
	"os"
)

// Bar is a simple console progress bar
type Bar struct {
	label   string
	enabled bool
	current int
	max     int
	out     io.Writer
}

func (b *Bar) display() {
	if !b.enabled {
		return
	}
	label := b.label
	if label == "" {
		label = "Progress"
	}
	fmt.Fprintf(b.out, "\r%s: %d/%d", label, b.current, b.max)
}

// NewBar creates a progress bar displayed on the standard output
func NewBar(max int, label string) *Bar {
	return NewBarWithOutput(os.Stdout, max, label)
}

// NewBarWithOutput creates a progress bar displayed on a specific output
func NewBarWithOutput(out io.Writer, max int, label string) *Bar {
	b := new(Bar)
	b.max = max
	b.current = 0
	b.enabled = true
	b.label = label
	b.out = out
	b.display()
	return b
}

// Increment moves the progress bar forward
func (b *Bar) Increment(val int) {
	b.current += val
	if b.current > b.max {
		b.current = b.max
	}
	b.display()
}

// Current returns the current progress
func (b *Bar) Current() int {
	return b.current
}

// EndBar displays the final state of a progress bar; it is not displayed anymore afterward
func EndBar(b *Bar) {
	if !b.enabled {
		return
	}
	b.display()
	fmt.Fprintf(b.out, "\n")
	b.enabled = false
}
