//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package bins

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gvallee/collective_profiler/internal/pkg/counts"
)

func TestBins(t *testing.T) {
	tests := []struct {
		name           string
		binsThresholds []int
		counts         []int
		datatypeSize   int
		binSizes       []int
	}{
		{
			name:           "3Bins3EltsInEachBin",
			binsThresholds: []int{10, 20},
			counts:         []int{0, 4, 11, 15, 1, 21, 20, 100, 12},
			datatypeSize:   1,
			binSizes:       []int{3, 3, 3},
		},
		{
			name:           "2bins1Elt5Elts",
			binsThresholds: []int{10},
			counts:         []int{9, 10, 21, 43, 34, 65},
			datatypeSize:   1,
			binSizes:       []int{1, 5},
		},
		{
			name:           "2binsWithDatatypeSize",
			binsThresholds: []int{10},
			counts:         []int{1, 2, 3},
			datatypeSize:   4,
			binSizes:       []int{2, 1},
		},
	}

	for _, tt := range tests {
		bins := Create(tt.binsThresholds)
		bins = GetFromCounts(tt.counts, bins, 1, 1, tt.datatypeSize)

		for i := 0; i < len(bins); i++ {
			if bins[i].Size != tt.binSizes[i] {
				t.Fatalf("%s: bin %d is of size %d instead of %d", tt.name, i, bins[i].Size, tt.binSizes[i])
			}
		}
	}
}

func TestGetFromInputDescr(t *testing.T) {
	listBins, err := GetFromInputDescr("200,1024, 4096")
	if err != nil {
		t.Fatalf("GetFromInputDescr() failed: %s", err)
	}
	if len(listBins) != 3 || listBins[0] != 200 || listBins[2] != 4096 {
		t.Fatalf("invalid thresholds: %v", listBins)
	}

	for _, invalid := range []string{"a,2", "200,100", ""} {
		_, err = GetFromInputDescr(invalid)
		if err == nil {
			t.Fatalf("GetFromInputDescr(%q) succeeded", invalid)
		}
	}
}

func TestGetFromSeries(t *testing.T) {
	r := counts.NewRegistry()
	send := [][]int{{1, 100}, {1, 100}}
	for callID := 0; callID < 3; callID++ {
		_, err := r.Record(callID, 2, 1, 1, send, send)
		if err != nil {
			t.Fatalf("Record() failed: %s", err)
		}
	}
	_, err := r.Record(3, 2, 8, 8, [][]int{{2}, {0}}, [][]int{{2}, {0}})
	if err != nil {
		t.Fatalf("Record() failed: %s", err)
	}

	bins := GetFromSeries(r.Series()[0], Create([]int{10}))
	// 2 ranks, 3 calls, one small and one large message each time
	if bins[0].Size != 6 || bins[1].Size != 6 {
		t.Fatalf("invalid bins: %+v", bins)
	}

	// A single count applies to every peer: 2 messages of 16 bytes, 2 of 0 bytes
	bins = GetFromSeries(r.Series()[1], Create([]int{10}))
	if bins[0].Size != 2 || bins[1].Size != 2 {
		t.Fatalf("invalid bins: %+v", bins)
	}

	dir := t.TempDir()
	err = Save(dir, "alltoallv", 1, bins)
	if err != nil {
		t.Fatalf("Save() failed: %s", err)
	}
	content, err := ioutil.ReadFile(filepath.Join(dir, "alltoallv-bin.series1_10+.txt"))
	if err != nil {
		t.Fatalf("unable to read bin file: %s", err)
	}
	if strings.TrimSpace(string(content)) != "2" {
		t.Fatalf("invalid bin file content: %s", string(content))
	}
}
