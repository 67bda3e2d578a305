//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package counts

import (
	"fmt"
	"strings"
)

// VectorGroup is a count (or displacement) vector and all the ranks that
// provided that exact vector during a call
type VectorGroup struct {
	// Counts is the vector shared by all the ranks of the group. It is a private copy and never modified.
	Counts []int

	// Ranks is the list of ranks, in the order they were classified
	Ranks []int
}

// Store deduplicates the vectors of all the ranks of a communicator for one
// call and one direction (send or receive). Every rank belongs to one and only
// one group once classified.
type Store struct {
	size   int
	groups []*VectorGroup

	// rankGroup is the index of the group of each rank, -1 when not classified yet
	rankGroup []int
}

// NewStore creates an empty store for a communicator of a given size
func NewStore(commSize int) *Store {
	s := new(Store)
	s.size = commSize
	s.rankGroup = make([]int, commSize)
	for i := range s.rankGroup {
		s.rankGroup[i] = -1
	}
	return s
}

func sameCounts(c1 []int, c2 []int) bool {
	if len(c1) != len(c2) {
		return false
	}
	for i := range c1 {
		if c1[i] != c2[i] {
			return false
		}
	}
	return true
}

func (s *Store) lookupCounts(counts []int) int {
	for idx, g := range s.groups {
		if sameCounts(g.Counts, counts) {
			return idx
		}
	}
	return -1
}

// Classify adds a rank's vector to the store and returns the handle of the
// group the rank now belongs to. A rank can only be classified once.
func (s *Store) Classify(rank int, counts []int) int {
	if rank < 0 || rank >= s.size {
		panic(fmt.Sprintf("rank %d is out of range (communicator size: %d)", rank, s.size))
	}
	if s.rankGroup[rank] != -1 {
		panic(fmt.Sprintf("rank %d is already classified", rank))
	}

	idx := s.lookupCounts(counts)
	if idx != -1 {
		s.groups[idx].Ranks = append(s.groups[idx].Ranks, rank)
		s.rankGroup[rank] = idx
		return idx
	}

	g := new(VectorGroup)
	g.Counts = make([]int, len(counts))
	copy(g.Counts, counts)
	g.Ranks = []int{rank}
	s.groups = append(s.groups, g)
	idx = len(s.groups) - 1
	s.rankGroup[rank] = idx
	return idx
}

// GroupOf returns the handle of the group of a rank. The rank must have been
// classified.
func (s *Store) GroupOf(rank int) int {
	if rank < 0 || rank >= s.size || s.rankGroup[rank] == -1 {
		panic(fmt.Sprintf("rank %d has not been classified", rank))
	}
	return s.rankGroup[rank]
}

// Matches checks whether the vector of a rank is identical to the given counts
func (s *Store) Matches(rank int, counts []int) bool {
	return sameCounts(s.CountsOf(rank), counts)
}

// CountsOf returns the vector of a rank
func (s *Store) CountsOf(rank int) []int {
	return s.groups[s.GroupOf(rank)].Counts
}

// Group returns the group associated to a handle
func (s *Store) Group(handle int) *VectorGroup {
	return s.groups[handle]
}

// Groups returns all the groups in the order they were created
func (s *Store) Groups() []*VectorGroup {
	return s.groups
}

// NumGroups returns the number of distinct vectors
func (s *Store) NumGroups() int {
	return len(s.groups)
}

// CommSize returns the size of the communicator the store is for
func (s *Store) CommSize() int {
	return s.size
}

// Complete checks whether all the ranks of the communicator have been classified
func (s *Store) Complete() bool {
	for _, idx := range s.rankGroup {
		if idx == -1 {
			return false
		}
	}
	return true
}

// CompressionRatio is the number of ranks per distinct vector
func (s *Store) CompressionRatio() float64 {
	if len(s.groups) == 0 {
		return 0
	}
	return float64(s.size) / float64(len(s.groups))
}

func (g *VectorGroup) String() string {
	var str []string
	for _, c := range g.Counts {
		str = append(str, fmt.Sprintf("%d", c))
	}
	return strings.Join(str, " ")
}
