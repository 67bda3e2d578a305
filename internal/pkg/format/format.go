//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package format

import "sort"

const (
	// CountsFileSuffix is the suffix of the file used to store the compacted counts of a collective
	CountsFileSuffix = "-counts.md"

	// PatternsFileSuffix is the suffix of the file used to store the patterns of a collective
	PatternsFileSuffix = "-patterns.md"

	// GroupsFileSuffix is the suffix of the file used to store the groups of ranks of a collective
	GroupsFileSuffix = "-groups.md"
)

// KV is a key/value pair from a map of integers
type KV struct {
	Key int
	Val int
}

// KVList is a list of key/value pairs, ordered by value then key
type KVList []KV

func (x KVList) Len() int { return len(x) }
func (x KVList) Less(i, j int) bool {
	if x[i].Val == x[j].Val {
		return x[i].Key < x[j].Key
	}
	return x[i].Val < x[j].Val
}
func (x KVList) Swap(i, j int) { x[i], x[j] = x[j], x[i] }

// ConvertIntMapToOrderedArrayByValue returns the content of a map ordered
// by value; pairs with the same value are ordered by key so the result is
// always the same for a given map
func ConvertIntMapToOrderedArrayByValue(m map[int]int) KVList {
	var sortedArray KVList
	for k, v := range m {
		sortedArray = append(sortedArray, KV{Key: k, Val: v})
	}
	sort.Sort(sortedArray)
	return sortedArray
}

// ConvertIntMapToOrderedArrayByKey returns the content of a map ordered by key
func ConvertIntMapToOrderedArrayByKey(m map[int]int) KVList {
	var sortedArray KVList
	for k, v := range m {
		sortedArray = append(sortedArray, KV{Key: k, Val: v})
	}
	sort.Slice(sortedArray, func(i, j int) bool {
		return sortedArray[i].Key < sortedArray[j].Key
	})
	return sortedArray
}
