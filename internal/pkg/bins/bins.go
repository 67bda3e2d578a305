//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package bins

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gvallee/collective_profiler/internal/pkg/counts"
)

// Data is a bin of message sizes: all the messages of at least Min bytes
// and less than Max bytes. Max is -1 for the last bin.
type Data struct {
	Min  int
	Max  int
	Size int
}

func getOutputFile(dir string, prefix string, seriesIdx int, b Data) string {
	outputFile := fmt.Sprintf("%s-bin.series%d_%d-%d.txt", prefix, seriesIdx, b.Min, b.Max)
	if b.Max == -1 {
		outputFile = fmt.Sprintf("%s-bin.series%d_%d+.txt", prefix, seriesIdx, b.Min)
	}
	if dir != "" {
		outputFile = filepath.Join(dir, outputFile)
	}

	return outputFile
}

// GetFromInputDescr parses the string describing a series of threshold to use
// for the organization of data into bins and returns a slice of int with each
// element being a threshold
func GetFromInputDescr(binStr string) ([]int, error) {
	listBinsStr := strings.Split(binStr, ",")
	var listBins []int
	for _, s := range listBinsStr {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("unable to get array of thresholds for bins: %w", err)
		}
		if len(listBins) > 0 && n <= listBins[len(listBins)-1] {
			return nil, fmt.Errorf("thresholds for bins are not in increasing order: %s", binStr)
		}
		listBins = append(listBins, n)
	}
	return listBins, nil
}

// Create returns the bins associated to a list of thresholds
func Create(listBins []int) []Data {
	var bins []Data

	start := 0
	end := -1
	if len(listBins) > 0 {
		end = listBins[0]
	}
	for i := 0; i < len(listBins)+1; i++ {
		var b Data
		b.Min = start
		b.Max = end
		b.Size = 0

		start = end
		if i+1 < len(listBins) {
			end = listBins[i+1]
		} else {
			end = -1 // Means no max
		}

		bins = append(bins, b)
	}

	return bins
}

func addToBins(bins []Data, val int, n int) {
	for i := 0; i < len(bins); i++ {
		if (bins[i].Max != -1 && bins[i].Min <= val && val < bins[i].Max) || (bins[i].Max == -1 && val >= bins[i].Min) {
			bins[i].Size += n
			return
		}
	}
}

// GetFromCounts adds to the bins the messages described by a vector of
// counts shared by nRanks ranks during numCalls calls
func GetFromCounts(countsVector []int, bins []Data, numCalls int, nRanks int, datatypeSize int) []Data {
	for _, c := range countsVector {
		addToBins(bins, c*datatypeSize, numCalls*nRanks)
	}
	return bins
}

// GetFromSeries classifies all the send messages of a series into bins
func GetFromSeries(s *counts.CallSeries, bins []Data) []Data {
	numCalls := len(s.Calls)
	for _, g := range s.Send.Groups() {
		nRanks := len(g.Ranks)
		if len(g.Counts) == 1 {
			// The count applies to every peer
			nRanks *= s.CommSize
		}
		bins = GetFromCounts(g.Counts, bins, numCalls, nRanks, s.SendDatatypeSize)
	}
	log.Printf("Classified messages of %d calls into %d bins", numCalls, len(bins))
	return bins
}

// Save writes the data of all the bins into output file. The output files
// are created in a target output directory.
func Save(dir string, prefix string, seriesIdx int, bins []Data) error {
	for _, b := range bins {
		outputFile := getOutputFile(dir, prefix, seriesIdx, b)
		err := os.WriteFile(outputFile, []byte(fmt.Sprintf("%d\n", b.Size)), 0644)
		if err != nil {
			return fmt.Errorf("unable to write bin to file %s: %w", outputFile, err)
		}
	}
	return nil
}
