//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package counts

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	/* All the constants related to the standard format */
	StandardFormatSendDatatypeMarker = "Send datatype size: "
	StandardFormatRecvDatatypeMarker = "Recv datatype size: "
	StandardFormatCommSizeMarker     = "Comm size: "
	StandardFormatSendCountsMarker   = "Send counts"
	StandardFormatRecvCountsMarker   = "Recv counts"

	// RawCountersFilePrefix is the prefix used for all raw counts files (one file per call; no compact format)
	RawCountersFilePrefix = "counts.rank"

	rawCountersFileSuffix = ".md"
	callMarker            = "_call"
)

// Header is the metadata at the beginning of a raw counts file
type Header struct {
	SendDatatypeSize int
	RecvDatatypeSize int
	CommSize         int
}

// RawCall is the data of a call as saved by the lead rank of the
// communicator: one line of counts per rank and per direction
type RawCall struct {
	// CallID is the call number (zero-indexed)
	CallID int

	// LeadRank is the rank on MPI_COMM_WORLD that saved the counts
	LeadRank int

	Header

	SendCounts [][]int
	RecvCounts [][]int
}

// GetCallFilePath returns the path of the raw counts file of a call
func GetCallFilePath(dir string, leadRank int, callID int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d%s%d%s", RawCountersFilePrefix, leadRank, callMarker, callID, rawCountersFileSuffix))
}

func getInfoFromFileName(path string) (int, int, error) {
	filename := filepath.Base(path)
	if !strings.HasPrefix(filename, RawCountersFilePrefix) || !strings.HasSuffix(filename, rawCountersFileSuffix) {
		return -1, -1, fmt.Errorf("%s is not a raw counts file", filename)
	}
	str := strings.TrimPrefix(filename, RawCountersFilePrefix)
	str = strings.TrimSuffix(str, rawCountersFileSuffix)
	tokens := strings.Split(str, callMarker)
	if len(tokens) != 2 {
		return -1, -1, fmt.Errorf("unable to parse %s", filename)
	}
	leadRank, err := strconv.Atoi(tokens[0])
	if err != nil {
		return -1, -1, fmt.Errorf("unable to get the lead rank from %s: %w", filename, err)
	}
	callID, err := strconv.Atoi(tokens[1])
	if err != nil {
		return -1, -1, fmt.Errorf("unable to get the call ID from %s: %w", filename, err)
	}
	return leadRank, callID, nil
}

// ParseCountsLine converts a line of counts, e.g., "1 2 3 ", into a vector
func ParseCountsLine(line string) ([]int, error) {
	var counts []int
	for _, token := range strings.Fields(line) {
		c, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("invalid count %q: %w", token, err)
		}
		counts = append(counts, c)
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("empty line of counts")
	}
	return counts, nil
}
