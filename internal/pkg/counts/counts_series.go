//
// Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package counts

import (
	"fmt"
	"log"

	"github.com/gvallee/collective_profiler/pkg/errors"
)

// CallSeries gathers all the calls that have exactly the same communicator
// size, datatype sizes and send/receive vectors for every rank
type CallSeries struct {
	// CommSize is the communicator size used for the calls
	CommSize int

	// SendDatatypeSize is the size in bytes of the datatype used to send data
	SendDatatypeSize int

	// RecvDatatypeSize is the size in bytes of the datatype used to receive data
	RecvDatatypeSize int

	// Send is the compacted send vectors
	Send *Store

	// Recv is the compacted receive vectors
	Recv *Store

	// Calls is the list of calls, in the order they were recorded, that exhibited the series' data
	Calls []int
}

// Registry is the list of all the unique series of calls in the order they
// were first seen
type Registry struct {
	series     []*CallSeries
	numCalls   int
	lastCallID int
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return new(Registry)
}

func checkVectors(ctx string, commSize int, vectors [][]int) error {
	if len(vectors) != commSize {
		return fmt.Errorf("%d %s vectors for a communicator of size %d", len(vectors), ctx, commSize)
	}

	vectorLen := len(vectors[0])
	if vectorLen != 1 && vectorLen != commSize {
		return fmt.Errorf("%s vectors of length %d for a communicator of size %d", ctx, vectorLen, commSize)
	}

	for rank, v := range vectors {
		if len(v) != vectorLen {
			return fmt.Errorf("%s vector of rank %d has %d elements instead of %d", ctx, rank, len(v), vectorLen)
		}
		for peer, c := range v {
			if c < 0 {
				return fmt.Errorf("negative %s count for rank %d and peer %d: %d", ctx, rank, peer, c)
			}
		}
	}

	return nil
}

// CheckCallData makes sure the vectors of a call are usable: one vector per
// rank, with either one element or one element per peer, and no negative
// value
func CheckCallData(commSize int, send [][]int, recv [][]int) error {
	if commSize < 1 {
		return errors.New(errors.ErrInvalidInput, fmt.Errorf("invalid communicator size: %d", commSize))
	}

	err := checkVectors("send", commSize, send)
	if err != nil {
		return errors.New(errors.ErrInvalidInput, err)
	}

	err = checkVectors("recv", commSize, recv)
	if err != nil {
		return errors.New(errors.ErrInvalidInput, err)
	}

	return nil
}

func (s *CallSeries) sameData(commSize int, sendDatatypeSize int, recvDatatypeSize int, send [][]int, recv [][]int) bool {
	if s.CommSize != commSize || s.SendDatatypeSize != sendDatatypeSize || s.RecvDatatypeSize != recvDatatypeSize {
		return false
	}

	for rank := 0; rank < commSize; rank++ {
		if !s.Send.Matches(rank, send[rank]) {
			return false
		}
	}

	for rank := 0; rank < commSize; rank++ {
		if !s.Recv.Matches(rank, recv[rank]) {
			return false
		}
	}

	return true
}

func newCallSeries(callID int, commSize int, sendDatatypeSize int, recvDatatypeSize int, send [][]int, recv [][]int) *CallSeries {
	s := new(CallSeries)
	s.CommSize = commSize
	s.SendDatatypeSize = sendDatatypeSize
	s.RecvDatatypeSize = recvDatatypeSize
	s.Send = NewStore(commSize)
	s.Recv = NewStore(commSize)

	// We add the ranks' data one by one so the vectors are compacted when possible
	for rank := 0; rank < commSize; rank++ {
		s.Send.Classify(rank, send[rank])
	}
	for rank := 0; rank < commSize; rank++ {
		s.Recv.Classify(rank, recv[rank])
	}

	if !s.Send.Complete() || !s.Recv.Complete() {
		panic(fmt.Sprintf("call %d: some ranks have not been classified", callID))
	}

	s.Calls = []int{callID}
	return s
}

// Record adds the data of a call to the registry. If a series with the same
// data already exists, the call is only added to the series' list of calls.
// It returns the index of the series that owns the call. Call IDs must be
// increasing so a call belongs to a single series.
func (r *Registry) Record(callID int, commSize int, sendDatatypeSize int, recvDatatypeSize int, send [][]int, recv [][]int) (int, error) {
	if callID < 0 || (r.numCalls > 0 && callID <= r.lastCallID) {
		return -1, errors.New(errors.ErrInvalidInput, fmt.Errorf("call %d is out of order (last recorded call: %d)", callID, r.lastCallID))
	}

	err := CheckCallData(commSize, send, recv)
	if err != nil {
		return -1, err
	}
	r.lastCallID = callID

	for idx, s := range r.series {
		if s.sameData(commSize, sendDatatypeSize, recvDatatypeSize, send, recv) {
			log.Printf("Call %d - data already exists (series %d)", callID, idx)
			s.Calls = append(s.Calls, callID)
			r.numCalls++
			return idx, nil
		}
	}

	s := newCallSeries(callID, commSize, sendDatatypeSize, recvDatatypeSize, send, recv)
	r.series = append(r.series, s)
	r.numCalls++
	log.Printf("Call %d - new series %d with %d unique send vectors and %d unique recv vectors", callID, len(r.series)-1, s.Send.NumGroups(), s.Recv.NumGroups())
	return len(r.series) - 1, nil
}

func containsCall(callNum int, calls []int) bool {
	for i := 0; i < len(calls); i++ {
		if calls[i] == callNum {
			return true
		}
	}
	return false
}

// Lookup finds the series that a call belongs to
func (r *Registry) Lookup(callID int) (*CallSeries, bool) {
	for _, s := range r.series {
		if containsCall(callID, s.Calls) {
			return s, true
		}
	}
	return nil, false
}

// Series returns all the series in the order they were created
func (r *Registry) Series() []*CallSeries {
	return r.series
}

// NumSeries returns the number of unique series
func (r *Registry) NumSeries() int {
	return len(r.series)
}

// NumCalls returns the total number of calls that have been recorded
func (r *Registry) NumCalls() int {
	return r.numCalls
}

// Release drops all the data from the registry, which can then be reused
func (r *Registry) Release() {
	for _, s := range r.series {
		s.Send = nil
		s.Recv = nil
		s.Calls = nil
	}
	r.series = nil
	r.numCalls = 0
	r.lastCallID = 0
}
