//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package notation

import (
	"fmt"
	"strconv"
	"strings"
)

func addRange(str string, start int, end int) string {
	if str == "" {
		return fmt.Sprintf("%d-%d", start, end)
	}
	return fmt.Sprintf("%s,%d-%d", str, start, end)
}

func addSingleton(str string, n int) string {

	if str == "" {
		return fmt.Sprintf("%d", n)
	}

	return fmt.Sprintf("%s,%d", str, n)
}

// CompressIntArray returns the compressed notation of an ordered list of
// integers, e.g., 0-6,8-10,42
func CompressIntArray(array []int) string {
	compressedRep := ""
	for i := 0; i < len(array); i++ {
		start := i
		for i+1 < len(array) && array[i]+1 == array[i+1] {
			i++
		}
		if i != start {
			// We found a range
			compressedRep = addRange(compressedRep, array[start], array[i])
		} else {
			// We found a singleton
			compressedRep = addSingleton(compressedRep, array[i])
		}
	}
	return compressedRep
}

func splitCompressedNotation(str string) []string {
	var tokens []string
	for _, t := range strings.Split(str, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func parseRange(t string) (int, int, error) {
	t2 := strings.Split(t, "-")
	switch len(t2) {
	case 1:
		val, err := strconv.Atoi(t2[0])
		if err != nil {
			return 0, 0, err
		}
		return val, val, nil
	case 2:
		val1, err := strconv.Atoi(t2[0])
		if err != nil {
			return 0, 0, err
		}
		val2, err := strconv.Atoi(t2[1])
		if err != nil {
			return 0, 0, err
		}
		if val2 < val1 {
			return 0, 0, fmt.Errorf("invalid range: %s", t)
		}
		return val1, val2, nil
	}
	return 0, 0, fmt.Errorf("invalid range: %s", t)
}

// ConvertCompressedListToIntSlice expands a compressed notation into the list
// of all its elements
func ConvertCompressedListToIntSlice(str string) ([]int, error) {
	var list []int
	for _, t := range splitCompressedNotation(str) {
		start, end, err := parseRange(t)
		if err != nil {
			return nil, err
		}
		for i := start; i <= end; i++ {
			list = append(list, i)
		}
	}
	return list, nil
}
