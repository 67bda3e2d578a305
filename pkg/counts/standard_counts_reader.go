//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package counts

import (
	"bufio"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gvallee/collective_profiler/pkg/errors"
)

// readLine returns the next line without its end-of-line character. The last
// line of a file does not need to end with one.
func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func getHeaderValue(reader *bufio.Reader, marker string) (int, error) {
	line, err := readLine(reader)
	if err != nil {
		return -1, err
	}
	if !strings.HasPrefix(line, marker) {
		return -1, errors.New(errors.ErrInvalidHeader, fmt.Errorf("%s does not start with %s", line, marker))
	}
	val, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, marker)))
	if err != nil {
		return -1, errors.New(errors.ErrInvalidHeader, fmt.Errorf("unable to parse %s: %w", line, err))
	}
	return val, nil
}

// GetStandardHeader parses the header of a raw counts file
func GetStandardHeader(reader *bufio.Reader) (Header, error) {
	var header Header
	var err error

	// The first line is the send datatype size
	header.SendDatatypeSize, err = getHeaderValue(reader, StandardFormatSendDatatypeMarker)
	if err != nil {
		return header, err
	}

	// The second line is the recv datatype size
	header.RecvDatatypeSize, err = getHeaderValue(reader, StandardFormatRecvDatatypeMarker)
	if err != nil {
		return header, err
	}

	// The third line is the communicator size
	header.CommSize, err = getHeaderValue(reader, StandardFormatCommSizeMarker)
	if err != nil {
		return header, err
	}
	if header.CommSize < 1 {
		return header, errors.New(errors.ErrInvalidHeader, fmt.Errorf("invalid communicator size: %d", header.CommSize))
	}

	return header, nil
}

// nextNonEmptyLine skips empty lines, which separate the sections of a file
func nextNonEmptyLine(reader *bufio.Reader) (string, error) {
	for {
		line, err := readLine(reader)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) != "" {
			return line, nil
		}
	}
}

func getCountsSection(reader *bufio.Reader, marker string, commSize int) ([][]int, error) {
	line, err := nextNonEmptyLine(reader)
	if err != nil {
		return nil, fmt.Errorf("unable to find %s: %w", marker, err)
	}
	if !strings.HasPrefix(line, marker) {
		return nil, fmt.Errorf("invalid content: %s instead of %s", line, marker)
	}

	var counts [][]int
	for len(counts) < commSize {
		line, err = readLine(reader)
		if err != nil {
			return nil, fmt.Errorf("%d lines of %s instead of %d: %w", len(counts), strings.ToLower(marker), commSize, err)
		}
		c, err := ParseCountsLine(line)
		if err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, nil
}

// GetStandardCounts parses the send and receive counts of a raw counts file,
// one line per rank for each direction
func GetStandardCounts(reader *bufio.Reader, commSize int) ([][]int, [][]int, error) {
	sendCounts, err := getCountsSection(reader, StandardFormatSendCountsMarker, commSize)
	if err != nil {
		return nil, nil, err
	}

	recvCounts, err := getCountsSection(reader, StandardFormatRecvCountsMarker, commSize)
	if err != nil {
		return nil, nil, err
	}

	return sendCounts, recvCounts, nil
}

// ParsePerCallFileCount loads the counts from a non-compact count file.
// With that format, details about each call (both send and receive counts)
// are saved in separate files.
func ParsePerCallFileCount(path string) (*RawCall, error) {
	leadRank, callID, err := getInfoFromFileName(path)
	if err != nil {
		return nil, err
	}

	countFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer countFile.Close()

	reader := bufio.NewReader(countFile)
	header, err := GetStandardHeader(reader)
	if err != nil {
		return nil, fmt.Errorf("unable to parse the header of %s: %w", path, err)
	}
	sendCounts, recvCounts, err := GetStandardCounts(reader, header.CommSize)
	if err != nil {
		return nil, fmt.Errorf("unable to parse the counts of %s: %w", path, err)
	}

	rc := new(RawCall)
	rc.CallID = callID
	rc.LeadRank = leadRank
	rc.Header = header
	rc.SendCounts = sendCounts
	rc.RecvCounts = recvCounts
	return rc, nil
}

// FindRawCountFiles returns the list of raw counts files in a directory
func FindRawCountFiles(dir string) ([]string, error) {
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", dir, err)
	}

	var rawCountsFiles []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if _, _, err := getInfoFromFileName(file.Name()); err == nil {
			rawCountsFiles = append(rawCountsFiles, filepath.Join(dir, file.Name()))
		}
	}
	return rawCountsFiles, nil
}

// LoadCallsFromDir parses all the raw counts files from a directory and
// returns the calls ordered by lead rank then call ID
func LoadCallsFromDir(dir string) ([]*RawCall, error) {
	files, err := FindRawCountFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New(errors.ErrNotFound, fmt.Errorf("no raw counts file in %s", dir))
	}

	var calls []*RawCall
	for _, f := range files {
		c, err := ParsePerCallFileCount(f)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}

	sort.Slice(calls, func(i, j int) bool {
		if calls[i].LeadRank == calls[j].LeadRank {
			return calls[i].CallID < calls[j].CallID
		}
		return calls[i].LeadRank < calls[j].LeadRank
	})
	log.Printf("Loaded %d calls from %s", len(calls), dir)
	return calls, nil
}

// GroupByLeadRank splits calls based on the lead rank of their communicator.
// Call IDs are only meaningful for a given lead rank. It returns the sorted
// list of lead ranks and the calls of each of them, in their original order.
func GroupByLeadRank(calls []*RawCall) ([]int, map[int][]*RawCall) {
	var leadRanks []int
	callsPerLeadRank := make(map[int][]*RawCall)
	for _, c := range calls {
		if _, ok := callsPerLeadRank[c.LeadRank]; !ok {
			leadRanks = append(leadRanks, c.LeadRank)
		}
		callsPerLeadRank[c.LeadRank] = append(callsPerLeadRank[c.LeadRank], c)
	}
	sort.Ints(leadRanks)
	return leadRanks, callsPerLeadRank
}
