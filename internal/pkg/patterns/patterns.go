//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package patterns

import (
	"fmt"
	"log"

	"github.com/gvallee/collective_profiler/internal/pkg/counts"
	"github.com/gvallee/collective_profiler/internal/pkg/format"
)

// Mode specifies how patterns are accumulated
type Mode int

const (
	// Global accumulates the patterns of all the calls into a single list per direction
	Global Mode = iota

	// PerCall accumulates the patterns of each call and deduplicates calls with the same patterns
	PerCall
)

// Entry is a fan-out (or fan-in) pattern: NumRanks ranks send to (or receive
// from) NumPeers other ranks
type Entry struct {
	// NumPeers is the number of ranks data is sent to or received from
	NumPeers int

	// NumRanks is the number of ranks with that number of peers
	NumRanks int

	// NumCalls is the number of calls that exhibited the pattern
	NumCalls int

	// CommSize is the size of the communicator, -1 when the pattern is not scoped by communicator size
	CommSize int
}

// CallPattern is the send and receive patterns of a set of calls
type CallPattern struct {
	Send  []*Entry
	Recv  []*Entry
	Count int
	Calls []int
}

// Summary classifies the call patterns that have been detected
type Summary struct {
	// AllPatterns is the data for all the patterns that have been detected
	AllPatterns []*CallPattern

	// OneToN is the data of all the patterns that fits with a 1 -> N scheme
	OneToN []*CallPattern

	// NToN is the data of all the patterns where N ranks exchange data between all of them
	NToN []*CallPattern

	// NToOne is the data of all the patterns that fits with a N -> 1 scheme
	NToOne []*CallPattern

	// Empty is the data of all the patterns that do not exchange any data (all counts are equal to 0)
	Empty []*CallPattern
}

// Histogram accumulates the patterns of calls. In global mode, an entry is
// keyed by both its number of peers and its number of ranks (plus the
// communicator size when size-scoped): 3 ranks sending to 2 peers and 4 ranks
// sending to 2 peers are two different entries.
type Histogram struct {
	mode       Mode
	sizeScoped bool

	send         []*Entry
	recv         []*Entry
	callPatterns []*CallPattern
	emptyCalls   []int
	numCalls     int
}

func (m Mode) String() string {
	switch m {
	case Global:
		return "global"
	case PerCall:
		return "per-call"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// NewHistogram creates an empty histogram
func NewHistogram(mode Mode, sizeScoped bool) *Histogram {
	h := new(Histogram)
	h.mode = mode
	h.sizeScoped = sizeScoped
	return h
}

// Mode returns how the histogram accumulates patterns
func (h *Histogram) Mode() Mode {
	return h.mode
}

// numPeers is the number of ranks a vector exchanges data with. A single
// count applies to all the ranks of the communicator.
func numPeers(v []int, commSize int) int {
	if len(v) == 1 {
		if v[0] != 0 {
			return commSize
		}
		return 0
	}

	n := 0
	for _, c := range v {
		if c != 0 {
			n++
		}
	}
	return n
}

// getEntries returns the patterns of one direction of a call, ordered by
// number of ranks. Ranks that do not exchange any data are not part of any
// pattern.
func getEntries(vectors [][]int, commSize int, entryCommSize int) []*Entry {
	degrees := make(map[int]int)
	for _, v := range vectors {
		n := numPeers(v, commSize)
		if n > 0 {
			degrees[n]++
		}
	}

	var entries []*Entry
	for _, kv := range format.ConvertIntMapToOrderedArrayByValue(degrees) {
		e := &Entry{
			NumPeers: kv.Key,
			NumRanks: kv.Val,
			NumCalls: 1,
			CommSize: entryCommSize,
		}
		entries = append(entries, e)
	}
	return entries
}

func sameEntry(e1 *Entry, e2 *Entry) bool {
	return e1.NumPeers == e2.NumPeers && e1.NumRanks == e2.NumRanks && e1.CommSize == e2.CommSize
}

func addEntry(list []*Entry, e *Entry) []*Entry {
	for _, x := range list {
		if sameEntry(x, e) {
			x.NumCalls++
			return list
		}
	}
	return append(list, e)
}

// sameEntries compares two lists of patterns regardless of their order
func sameEntries(l1 []*Entry, l2 []*Entry) bool {
	if len(l1) != len(l2) {
		return false
	}

	for _, e1 := range l1 {
		found := false
		for _, e2 := range l2 {
			if sameEntry(e1, e2) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (h *Histogram) addCallPattern(callID int, send []*Entry, recv []*Entry) {
	for idx, x := range h.callPatterns {
		if sameEntries(x.Send, send) && sameEntries(x.Recv, recv) {
			log.Printf("-> Call #%d - Adding call to pattern %d...\n", callID, idx)
			x.Count++
			x.Calls = append(x.Calls, callID)
			return
		}
	}

	log.Printf("-> Call #%d - Adding new pattern...\n", callID)
	cp := new(CallPattern)
	cp.Send = send
	cp.Recv = recv
	cp.Count = 1
	cp.Calls = []int{callID}
	h.callPatterns = append(h.callPatterns, cp)
}

// Observe extracts the patterns of a call and adds them to the histogram
func (h *Histogram) Observe(callID int, send [][]int, recv [][]int, commSize int) error {
	err := counts.CheckCallData(commSize, send, recv)
	if err != nil {
		return err
	}

	h.numCalls++

	switch h.mode {
	case PerCall:
		// Patterns of a call are always scoped by the size of the communicator
		h.addCallPattern(callID, getEntries(send, commSize, commSize), getEntries(recv, commSize, commSize))
	default:
		entryCommSize := -1
		if h.sizeScoped {
			entryCommSize = commSize
		}
		sendEntries := getEntries(send, commSize, entryCommSize)
		recvEntries := getEntries(recv, commSize, entryCommSize)
		for _, e := range sendEntries {
			h.send = addEntry(h.send, e)
		}
		for _, e := range recvEntries {
			h.recv = addEntry(h.recv, e)
		}
		if len(sendEntries) == 0 && len(recvEntries) == 0 {
			h.emptyCalls = append(h.emptyCalls, callID)
		}
	}

	return nil
}

// Send returns the send patterns accumulated in global mode
func (h *Histogram) Send() []*Entry {
	return h.send
}

// Recv returns the receive patterns accumulated in global mode
func (h *Histogram) Recv() []*Entry {
	return h.recv
}

// CallPatterns returns the patterns of the calls in per-call mode
func (h *Histogram) CallPatterns() []*CallPattern {
	return h.callPatterns
}

// NumCalls returns the number of calls that have been observed
func (h *Histogram) NumCalls() int {
	return h.numCalls
}

func (cp *CallPattern) isEmpty() bool {
	return len(cp.Send) == 0 && len(cp.Recv) == 0
}

// Summarize classifies the call patterns. In global mode, where calls are not
// tracked individually, only calls that do not exchange any data are reported.
func (h *Histogram) Summarize() Summary {
	var s Summary

	if h.mode == Global {
		if len(h.emptyCalls) > 0 {
			cp := &CallPattern{
				Count: len(h.emptyCalls),
				Calls: append([]int{}, h.emptyCalls...),
			}
			s.Empty = append(s.Empty, cp)
		}
		return s
	}

	for _, cp := range h.callPatterns {
		s.AllPatterns = append(s.AllPatterns, cp)

		// We need to track calls that act like a barrier (no data exchanged)
		if cp.isEmpty() {
			s.Empty = append(s.Empty, cp)
			continue
		}

		// Detect specific patterns using the send counts only, e.g., 1->n, n->1 and n->n
		// Note: we do not need to check the receive side because if n ranks are sending to n other ranks,
		// we know that n ranks are receiving from n other ranks with equivalent counts. Send/receive symmetry.
		oneToN, nToN, nToOne := false, false, false
		for _, e := range cp.Send {
			nDest := e.NumPeers
			nSrc := e.NumRanks

			// Detect 1->n patterns
			if nDest > nSrc*100 {
				oneToN = true
				continue
			}

			// Detect n->n patterns
			if float64(nDest)*0.9 <= float64(nSrc) && float64(nSrc) <= float64(nDest)*1.1 {
				nToN = true
				continue
			}

			// Detect n->1 patterns
			if nDest*100 < nSrc {
				nToOne = true
			}
		}
		if oneToN {
			s.OneToN = append(s.OneToN, cp)
		}
		if nToN {
			s.NToN = append(s.NToN, cp)
		}
		if nToOne {
			s.NToOne = append(s.NToOne, cp)
		}
	}

	return s
}

// NoSummary checks whether a summary does not highlight any specific pattern
func NoSummary(s Summary) bool {
	return len(s.OneToN) == 0 && len(s.NToOne) == 0 && len(s.NToN) == 0
}

// Release drops all the patterns, the histogram can then be reused
func (h *Histogram) Release() {
	h.send = nil
	h.recv = nil
	h.callPatterns = nil
	h.emptyCalls = nil
	h.numCalls = 0
}
