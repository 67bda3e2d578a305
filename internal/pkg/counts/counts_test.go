//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package counts

import (
	goerrors "errors"
	"reflect"
	"testing"

	"github.com/gvallee/collective_profiler/pkg/errors"
)

func checkPartition(t *testing.T, ctx string, st *Store) {
	seen := make(map[int]int)
	for idx, g := range st.Groups() {
		for _, r := range g.Ranks {
			if prev, ok := seen[r]; ok {
				t.Fatalf("%s: rank %d is in groups %d and %d", ctx, r, prev, idx)
			}
			seen[r] = idx
			if st.GroupOf(r) != idx {
				t.Fatalf("%s: GroupOf(%d) returned %d instead of %d", ctx, r, st.GroupOf(r), idx)
			}
		}
	}
	if len(seen) != st.CommSize() {
		t.Fatalf("%s: %d ranks classified instead of %d", ctx, len(seen), st.CommSize())
	}
	if !st.Complete() {
		t.Fatalf("%s: store reports unclassified ranks", ctx)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		counts         [][]int
		expectedGroups [][]int
	}{
		{
			counts: [][]int{
				{1, 1, 1, 0, 0, 0},
				{1, 1, 1, 0, 0, 0},
				{1, 1, 1, 0, 0, 0},
				{0, 0, 0, 1, 1, 1},
				{0, 0, 0, 1, 1, 1},
				{0, 0, 0, 1, 1, 1},
			},
			expectedGroups: [][]int{
				{0, 1, 2},
				{3, 4, 5},
			},
		},
		{
			counts: [][]int{
				{0, 0, 0, 0},
				{1, 1, 1, 1},
				{0, 0, 0, 0},
				{0, 0, 0, 0},
			},
			expectedGroups: [][]int{
				{0, 2, 3},
				{1},
			},
		},
		{
			counts:         [][]int{{42}},
			expectedGroups: [][]int{{0}},
		},
	}

	for _, tt := range tests {
		st := NewStore(len(tt.counts))
		for rank, c := range tt.counts {
			h := st.Classify(rank, c)
			if !reflect.DeepEqual(st.Group(h).Counts, c) {
				t.Fatalf("handle %d for rank %d has counts %v instead of %v", h, rank, st.Group(h).Counts, c)
			}
		}

		if st.NumGroups() != len(tt.expectedGroups) {
			t.Fatalf("%d groups instead of %d", st.NumGroups(), len(tt.expectedGroups))
		}
		for idx, g := range st.Groups() {
			if !reflect.DeepEqual(g.Ranks, tt.expectedGroups[idx]) {
				t.Fatalf("group %d has ranks %v instead of %v", idx, g.Ranks, tt.expectedGroups[idx])
			}
		}
		checkPartition(t, "classify", st)
	}
}

func TestClassifyKeepsPrivateCopy(t *testing.T) {
	st := NewStore(2)
	c := []int{1, 2}
	st.Classify(0, c)
	c[0] = 42
	if st.CountsOf(0)[0] != 1 {
		t.Fatalf("stored vector was modified by the caller")
	}
	if st.Matches(0, c) {
		t.Fatalf("modified vector still matches the stored one")
	}
}

func TestCommSizeOne(t *testing.T) {
	r := NewRegistry()
	idx, err := r.Record(0, 1, 4, 4, [][]int{{3}}, [][]int{{3}})
	if err != nil {
		t.Fatalf("Record() failed: %s", err)
	}
	s := r.Series()[idx]
	if s.Send.NumGroups() != 1 || len(s.Send.Group(0).Ranks) != 1 {
		t.Fatalf("invalid send groups for a communicator of size 1")
	}
	if s.Recv.NumGroups() != 1 || len(s.Recv.Group(0).Ranks) != 1 {
		t.Fatalf("invalid recv groups for a communicator of size 1")
	}
	if s.Send.CompressionRatio() != 1 {
		t.Fatalf("compression ratio is %f instead of 1", s.Send.CompressionRatio())
	}
	if NewStore(1).CompressionRatio() != 0 {
		t.Fatalf("empty store must have a compression ratio of 0")
	}
}

func TestRecord(t *testing.T) {
	v1 := [][]int{
		{1, 1, 1, 0},
		{1, 1, 1, 0},
		{0, 0, 0, 1},
		{0, 0, 0, 1},
	}
	v2 := [][]int{
		{2, 2, 2, 2},
		{2, 2, 2, 2},
		{2, 2, 2, 2},
		{2, 2, 2, 2},
	}
	v3 := [][]int{
		{1, 1, 1},
		{1, 1, 1},
		{1, 1, 1},
	}

	r := NewRegistry()

	// Call 0 and call 2 are identical, call 1 differs: call 2 must find the
	// second series even though the first one does not match
	idx, err := r.Record(0, 4, 8, 8, v1, v1)
	if err != nil || idx != 0 {
		t.Fatalf("Record() failed: %d, %v", idx, err)
	}
	idx, err = r.Record(1, 4, 8, 8, v2, v2)
	if err != nil || idx != 1 {
		t.Fatalf("Record() failed: %d, %v", idx, err)
	}
	idx, err = r.Record(2, 4, 8, 8, v2, v2)
	if err != nil || idx != 1 {
		t.Fatalf("call 2 was recorded in series %d instead of 1 (err: %v)", idx, err)
	}
	numGroups := r.Series()[1].Send.NumGroups()

	// Same vectors but different datatype size
	idx, err = r.Record(3, 4, 4, 8, v2, v2)
	if err != nil || idx != 2 {
		t.Fatalf("call 3 was recorded in series %d instead of 2 (err: %v)", idx, err)
	}

	// Same vectors for send but not for receive
	idx, err = r.Record(4, 4, 8, 8, v1, v2)
	if err != nil || idx != 3 {
		t.Fatalf("call 4 was recorded in series %d instead of 3 (err: %v)", idx, err)
	}

	// Different communicator size
	idx, err = r.Record(5, 3, 8, 8, v3, v3)
	if err != nil || idx != 4 {
		t.Fatalf("call 5 was recorded in series %d instead of 4 (err: %v)", idx, err)
	}

	if r.NumSeries() != 5 {
		t.Fatalf("%d series instead of 5", r.NumSeries())
	}
	if r.NumCalls() != 6 {
		t.Fatalf("%d calls instead of 6", r.NumCalls())
	}
	if !reflect.DeepEqual(r.Series()[1].Calls, []int{1, 2}) {
		t.Fatalf("series 1 has calls %v instead of [1 2]", r.Series()[1].Calls)
	}
	if r.Series()[1].Send.NumGroups() != numGroups {
		t.Fatalf("recording an identical call changed the number of groups")
	}

	for callID := 0; callID < 6; callID++ {
		s, ok := r.Lookup(callID)
		if !ok {
			t.Fatalf("unable to find call %d", callID)
		}
		n := 0
		for _, candidate := range r.Series() {
			if containsCall(callID, candidate.Calls) {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("call %d belongs to %d series", callID, n)
		}
		checkPartition(t, "send", s.Send)
		checkPartition(t, "recv", s.Recv)
	}
	if _, ok := r.Lookup(42); ok {
		t.Fatalf("unknown call found")
	}
}

func TestRecordDifferentCommSize(t *testing.T) {
	r := NewRegistry()
	_, err := r.Record(0, 2, 1, 1, [][]int{{1}, {1}}, [][]int{{1}, {1}})
	if err != nil {
		t.Fatalf("Record() failed: %s", err)
	}
	_, err = r.Record(1, 3, 1, 1, [][]int{{1}, {1}, {1}}, [][]int{{1}, {1}, {1}})
	if err != nil {
		t.Fatalf("Record() failed: %s", err)
	}
	if r.NumSeries() != 2 {
		t.Fatalf("%d series instead of 2", r.NumSeries())
	}
	for i, s := range r.Series() {
		if len(s.Calls) != 1 || s.Calls[0] != i {
			t.Fatalf("series %d has calls %v", i, s.Calls)
		}
	}
}

func TestRecordIdempotence(t *testing.T) {
	send := [][]int{{0, 3, 3}, {3, 0, 3}, {3, 3, 0}}
	recv := [][]int{{0, 3, 3}, {3, 0, 3}, {3, 3, 0}}

	r := NewRegistry()
	for i := 0; i < 100; i++ {
		_, err := r.Record(i, 3, 4, 4, send, recv)
		if err != nil {
			t.Fatalf("Record() failed: %s", err)
		}
	}

	if r.NumSeries() != 1 {
		t.Fatalf("%d series instead of 1", r.NumSeries())
	}
	s := r.Series()[0]
	if len(s.Calls) != 100 {
		t.Fatalf("%d calls in series instead of 100", len(s.Calls))
	}
	if s.Send.NumGroups() != 3 || s.Recv.NumGroups() != 3 {
		t.Fatalf("unexpected number of groups: %d/%d", s.Send.NumGroups(), s.Recv.NumGroups())
	}
}

func TestRecordInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		commSize int
		send     [][]int
		recv     [][]int
	}{
		{
			name:     "empty communicator",
			commSize: 0,
		},
		{
			name:     "missing rank",
			commSize: 2,
			send:     [][]int{{1, 1}},
			recv:     [][]int{{1, 1}, {1, 1}},
		},
		{
			name:     "invalid vector length",
			commSize: 3,
			send:     [][]int{{1, 1}, {1, 1}, {1, 1}},
			recv:     [][]int{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}},
		},
		{
			name:     "inconsistent vector lengths",
			commSize: 2,
			send:     [][]int{{1, 1}, {1}},
			recv:     [][]int{{1, 1}, {1, 1}},
		},
		{
			name:     "negative count",
			commSize: 2,
			send:     [][]int{{1, 1}, {1, 1}},
			recv:     [][]int{{1, -1}, {1, 1}},
		},
	}

	for _, tt := range tests {
		r := NewRegistry()
		_, err := r.Record(0, tt.commSize, 1, 1, tt.send, tt.recv)
		if err == nil {
			t.Fatalf("%s: Record() succeeded", tt.name)
		}
		var profilerErr *errors.ProfilerError
		if !goerrors.As(err, &profilerErr) || !profilerErr.Is(errors.ErrInvalidInput) {
			t.Fatalf("%s: unexpected error: %s", tt.name, err)
		}
		if r.NumSeries() != 0 || r.NumCalls() != 0 {
			t.Fatalf("%s: data recorded despite the error", tt.name)
		}
	}
}

func TestRelease(t *testing.T) {
	r := NewRegistry()
	_, err := r.Record(0, 2, 1, 1, [][]int{{1, 0}, {0, 1}}, [][]int{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("Record() failed: %s", err)
	}

	r.Release()
	r.Release()
	if r.NumSeries() != 0 || r.NumCalls() != 0 {
		t.Fatalf("registry not empty after release")
	}
	if _, ok := r.Lookup(0); ok {
		t.Fatalf("call found after release")
	}

	idx, err := r.Record(1, 2, 1, 1, [][]int{{1, 0}, {0, 1}}, [][]int{{1, 0}, {0, 1}})
	if err != nil || idx != 0 {
		t.Fatalf("registry cannot be reused after release: %d, %v", idx, err)
	}
}

func TestGetStats(t *testing.T) {
	r := NewRegistry()
	send := [][]int{
		{0, 10, 100},
		{0, 10, 100},
		{5, 0, 0},
	}
	recv := [][]int{{7}, {7}, {0}}
	_, err := r.Record(0, 3, 4, 2, send, recv)
	if err != nil {
		t.Fatalf("Record() failed: %s", err)
	}
	_, err = r.Record(1, 3, 4, 2, send, recv)
	if err != nil {
		t.Fatalf("Record() failed: %s", err)
	}

	stats := GetStats(r.Series()[0], 200)
	s := stats.Send
	if s.TotalNumCalls != 2 {
		t.Fatalf("%d calls instead of 2", s.TotalNumCalls)
	}
	if s.Sum != 225 {
		t.Fatalf("send sum is %d instead of 225", s.Sum)
	}
	if s.Min != 0 || s.Max != 100 || s.NotZeroMin != 5 {
		t.Fatalf("invalid min/max: %d/%d/%d", s.Min, s.Max, s.NotZeroMin)
	}
	if s.TotalZeroCounts != 4 || s.TotalNonZeroCounts != 5 {
		t.Fatalf("invalid zero counts: %d/%d", s.TotalZeroCounts, s.TotalNonZeroCounts)
	}
	// 100 x 4 bytes is the only large message size, sent by 2 ranks
	if s.LargeMsgs != 2 || s.SmallMsgs != 7 || s.SmallNotZeroMsgs != 3 {
		t.Fatalf("invalid message sizes: %d large, %d small, %d small but not zero", s.LargeMsgs, s.SmallMsgs, s.SmallNotZeroMsgs)
	}

	rs := stats.Recv
	if rs.Sum != 42 || rs.TotalNonZeroCounts != 6 || rs.TotalZeroCounts != 3 {
		t.Fatalf("invalid recv stats: %+v", rs)
	}
}

func TestRankSums(t *testing.T) {
	st := NewStore(3)
	st.Classify(0, []int{1, 2, 3})
	st.Classify(1, []int{0, 0, 0})
	st.Classify(2, []int{1, 2, 3})
	sums := RankSums(st, 8)
	if !reflect.DeepEqual(sums, []int{48, 0, 48}) {
		t.Fatalf("sums are %v instead of [48 0 48]", sums)
	}

	single := NewStore(4)
	for r := 0; r < 4; r++ {
		single.Classify(r, []int{r})
	}
	sums = RankSums(single, 2)
	if !reflect.DeepEqual(sums, []int{0, 8, 16, 24}) {
		t.Fatalf("sums are %v instead of [0 8 16 24]", sums)
	}
}

func TestRecordCallOrder(t *testing.T) {
	send := [][]int{{1, 0}, {0, 1}}
	tests := []struct {
		name    string
		callIDs []int
		valid   bool
	}{
		{name: "increasing", callIDs: []int{0, 1, 5}, valid: true},
		{name: "same call twice", callIDs: []int{0, 1, 1}, valid: false},
		{name: "going backward", callIDs: []int{3, 4, 0}, valid: false},
		{name: "negative", callIDs: []int{-1}, valid: false},
	}

	for _, tt := range tests {
		r := NewRegistry()
		var err error
		for _, id := range tt.callIDs {
			_, err = r.Record(id, 2, 1, 1, send, send)
			if err != nil {
				break
			}
		}
		if tt.valid {
			if err != nil {
				t.Fatalf("%s: Record() failed: %s", tt.name, err)
			}
			continue
		}
		var profilerErr *errors.ProfilerError
		if err == nil || !goerrors.As(err, &profilerErr) || !profilerErr.Is(errors.ErrInvalidInput) {
			t.Fatalf("%s: out of order call accepted: %v", tt.name, err)
		}
		if r.NumCalls() != len(tt.callIDs)-1 {
			t.Fatalf("%s: %d calls recorded instead of %d", tt.name, r.NumCalls(), len(tt.callIDs)-1)
		}
		s, ok := r.Lookup(tt.callIDs[0])
		if len(tt.callIDs) > 1 && (!ok || len(s.Calls) != len(tt.callIDs)-1) {
			t.Fatalf("%s: invalid series after rejected call", tt.name)
		}
	}
}
