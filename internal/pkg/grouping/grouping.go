//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package grouping

import (
	"fmt"
	"log"
	"sort"

	"github.com/gvallee/collective_profiler/pkg/errors"
)

/*
 * grouping implements an online algorithm that groups data points that are practically a rank and an
 * associated value. In this software package, the value is the amount of data
 * that a rank is sending or receiving.
 * The grouping algorithm is quite simple:
 *  - Groups are kept ordered by value and never overlap.
 *  - A new data point is added to the group that is the closest to its value.
 *  - We compare the median and the mean of the values of the group with the new
 *    data point and if they are too much appart (10% of the highest value by
 *    default), the group is split where the new value would be inserted and the
 *    data point goes to the closest half.
 *  - A group that is still not balanced after a split is split again where the
 *    gap between two consecutive values is the largest. The algorithm always
 *    stabilizes since a group of one or two data points is always balanced.
 */

// Group is a set of ranks with similar values
type Group struct {
	// Elts is the list of ranks of the group, ordered by value
	Elts []int

	// Min is the smallest value of the group
	Min int

	// Max is the highest value of the group
	Max int

	// CachedSum is the sum of the values of all the ranks of the group
	CachedSum int
}

// Engine groups ranks based on a value associated to each of them
type Engine struct {
	groups    []*Group
	tolerance float64
	values    map[int]int
}

const (
	// DEFAULT_MEAN_MEDIAN_DEVIATION is the maximum deviation between the mean and median of a group
	DEFAULT_MEAN_MEDIAN_DEVIATION = 0.1 // max of 10% of deviation
)

// Init creates a new engine using the default deviation
func Init() *Engine {
	e, err := NewEngine(DEFAULT_MEAN_MEDIAN_DEVIATION)
	if err != nil {
		// The default is always valid
		panic(err)
	}
	return e
}

// NewEngine creates a new engine with a specific deviation between the mean and
// median of a group, which must be in [0, 1)
func NewEngine(tolerance float64) (*Engine, error) {
	if tolerance < 0 || tolerance >= 1 {
		return nil, errors.New(errors.ErrInvalidConfig, fmt.Errorf("invalid deviation: %f", tolerance))
	}

	newEngine := new(Engine)
	newEngine.tolerance = tolerance
	newEngine.values = make(map[int]int)
	return newEngine, nil
}

func (e *Engine) getValue(rank int) int {
	v, ok := e.values[rank]
	if !ok {
		panic(fmt.Sprintf("rank %d is not in any group", rank))
	}
	return v
}

func getDistanceFromGroup(val int, gp *Group) int {
	if val > gp.Max {
		return val - gp.Max
	}
	if val < gp.Min {
		return gp.Min - val
	}
	return 0
}

// lookupGroup finds the index of the group that is the most likely to accept
// the data point. If the value is within the min/max of a group, the group is
// selected. If the value is between the max of a group and the min of the
// next one, the closest group is selected, the lower one on a tie.
func (e *Engine) lookupGroup(val int) int {
	if len(e.groups) == 0 {
		return -1
	}

	idx := sort.Search(len(e.groups), func(i int) bool {
		return e.groups[i].Max >= val
	})

	// the value is beyond the last group
	if idx == len(e.groups) {
		return idx - 1
	}

	// Within Min and Max of a group, or before the first group
	if val >= e.groups[idx].Min || idx == 0 {
		return idx
	}

	// the value is in-between 2 groups
	d1 := getDistanceFromGroup(val, e.groups[idx-1])
	d2 := getDistanceFromGroup(val, e.groups[idx])
	if d1 <= d2 {
		return idx - 1
	}
	return idx
}

func (gp *Group) updateMetadata(values map[int]int) {
	gp.CachedSum = 0
	for _, r := range gp.Elts {
		gp.CachedSum += values[r]
	}
	gp.Min = values[gp.Elts[0]]
	gp.Max = values[gp.Elts[len(gp.Elts)-1]]
}

func (e *Engine) addElt(gp *Group, rank int) {
	val := e.getValue(rank)

	// The array is ordered. It is not unusual to have the same values coming
	// over and over so we check with the max value of the group first.
	i := len(gp.Elts)
	if val < gp.Max {
		i = sort.Search(len(gp.Elts), func(j int) bool {
			return e.values[gp.Elts[j]] > val
		})
	}

	gp.Elts = append(gp.Elts, 0)
	copy(gp.Elts[i+1:], gp.Elts[i:])
	gp.Elts[i] = rank

	gp.CachedSum += val
	gp.Min = e.values[gp.Elts[0]]
	gp.Max = e.values[gp.Elts[len(gp.Elts)-1]]
}

func (e *Engine) createGroup(rank int) *Group {
	val := e.getValue(rank)
	newGroup := new(Group)
	newGroup.Elts = []int{rank}
	newGroup.Min = val
	newGroup.Max = val
	newGroup.CachedSum = val
	return newGroup
}

func (e *Engine) insertGroup(gp *Group, index int) {
	log.Printf("Inserting group [%d, %d] at index: %d", gp.Min, gp.Max, index)
	e.groups = append(e.groups, nil)
	copy(e.groups[index+1:], e.groups[index:])
	e.groups[index] = gp
}

func getMedian(sorted []int) float64 {
	size := len(sorted)
	if size%2 == 1 {
		return float64(sorted[size/2])
	}
	return float64(sorted[size/2-1]+sorted[size/2]) / 2
}

func (e *Engine) groupValues(gp *Group) []int {
	vals := make([]int, len(gp.Elts))
	for i, r := range gp.Elts {
		vals[i] = e.values[r]
	}
	return vals
}

// getMeanMedianWithAdditionalPoint returns the mean and median the group would
// have if val was added to it
func (e *Engine) getMeanMedianWithAdditionalPoint(gp *Group, val int) (float64, float64) {
	vals := e.groupValues(gp)
	i := sort.SearchInts(vals, val)
	vals = append(vals, 0)
	copy(vals[i+1:], vals[i:])
	vals[i] = val

	mean := float64(gp.CachedSum+val) / float64(len(vals))
	return mean, getMedian(vals)
}

func (e *Engine) getMean(gp *Group) float64 {
	return float64(gp.CachedSum) / float64(len(gp.Elts))
}

func (e *Engine) getMedian(gp *Group) float64 {
	return getMedian(e.groupValues(gp))
}

func (e *Engine) affinityIsOkay(mean float64, median float64) bool {
	maxMeanMedian := mean
	minMeanMedian := median
	if median > mean {
		maxMeanMedian = median
		minMeanMedian = mean
	}

	return maxMeanMedian*(1-e.tolerance) <= minMeanMedian
}

func (e *Engine) groupIsBalanced(gp *Group) bool {
	return e.affinityIsOkay(e.getMean(gp), e.getMedian(gp))
}

// splitGroup moves the elements of the group at index gpIdx starting at
// indexSplit to a new group inserted right after it
func (e *Engine) splitGroup(gpIdx int, indexSplit int) (*Group, error) {
	gp := e.groups[gpIdx]
	if indexSplit <= 0 || indexSplit >= len(gp.Elts) {
		return nil, fmt.Errorf("invalid split index %d for a group of %d elements", indexSplit, len(gp.Elts))
	}

	ng := new(Group)
	ng.Elts = append([]int{}, gp.Elts[indexSplit:]...)
	ng.updateMetadata(e.values)

	gp.Elts = gp.Elts[:indexSplit:indexSplit]
	gp.updateMetadata(e.values)

	e.insertGroup(ng, gpIdx+1)
	return ng, nil
}

// settleGroup splits the group at index gpIdx where the gap between two
// consecutive values is the largest, until all the resulting groups are
// balanced
func (e *Engine) settleGroup(gpIdx int) error {
	gp := e.groups[gpIdx]
	if len(gp.Elts) <= 1 || e.groupIsBalanced(gp) {
		return nil
	}

	vals := e.groupValues(gp)
	splitIdx := 1
	maxGap := vals[1] - vals[0]
	for i := 2; i < len(vals); i++ {
		if vals[i]-vals[i-1] > maxGap {
			maxGap = vals[i] - vals[i-1]
			splitIdx = i
		}
	}

	log.Printf("Group [%d, %d] is not balanced, splitting at index %d", gp.Min, gp.Max, splitIdx)
	_, err := e.splitGroup(gpIdx, splitIdx)
	if err != nil {
		return err
	}

	// The right half first so the index of the left half stays valid
	err = e.settleGroup(gpIdx + 1)
	if err != nil {
		return err
	}
	return e.settleGroup(gpIdx)
}

func (e *Engine) balanceGroupWithNewElement(gpIdx int, rank int) error {
	gp := e.groups[gpIdx]
	val := e.getValue(rank)

	mean, median := e.getMeanMedianWithAdditionalPoint(gp, val)
	log.Printf("Mean: %f; median: %f", mean, median)
	if e.affinityIsOkay(mean, median) {
		e.addElt(gp, rank)
		return nil
	}

	// We figure out where we need to split the group
	i := sort.Search(len(gp.Elts), func(j int) bool {
		return e.values[gp.Elts[j]] >= val
	})

	switch i {
	case len(gp.Elts):
		log.Printf("Group splitting only needs to add new group after group %d", gpIdx)
		e.insertGroup(e.createGroup(rank), gpIdx+1)
		return nil
	case 0:
		log.Printf("Group splitting only needs to add new group before group %d", gpIdx)
		e.insertGroup(e.createGroup(rank), gpIdx)
		return nil
	}

	log.Printf("Group %d needs to split in two at index %d", gpIdx, i)
	newGroup, err := e.splitGroup(gpIdx, i)
	if err != nil {
		return err
	}

	// We find the group that is the closest to the element to add
	d1 := getDistanceFromGroup(val, gp)
	d2 := getDistanceFromGroup(val, newGroup)
	if d2 < d1 {
		e.addElt(newGroup, rank)
	} else {
		e.addElt(gp, rank)
	}

	err = e.settleGroup(gpIdx + 1)
	if err != nil {
		return err
	}
	return e.settleGroup(gpIdx)
}

// AddDatapoint adds a rank and its value to the groups
func (e *Engine) AddDatapoint(rank int, value int) error {
	if _, ok := e.values[rank]; ok {
		return errors.New(errors.ErrInvalidInput, fmt.Errorf("rank %d is already in a group", rank))
	}
	if value < 0 {
		return errors.New(errors.ErrInvalidInput, fmt.Errorf("negative value for rank %d: %d", rank, value))
	}
	e.values[rank] = value

	// We scan the groups to see which group is the most likely to be suitable
	gpIdx := e.lookupGroup(value)
	if gpIdx == -1 {
		log.Println("No group found, creating a new one")
		e.insertGroup(e.createGroup(rank), 0)
		return nil
	}

	return e.balanceGroupWithNewElement(gpIdx, rank)
}

// Value returns the value associated to a rank that was added to the engine
func (e *Engine) Value(rank int) (int, bool) {
	v, ok := e.values[rank]
	return v, ok
}

// Tolerance returns the maximum deviation between the mean and median of a group
func (e *Engine) Tolerance() float64 {
	return e.tolerance
}

// GetGroups returns a copy of the current groups, ordered by value
func (e *Engine) GetGroups() []*Group {
	var gps []*Group
	for _, g := range e.groups {
		ng := new(Group)
		*ng = *g
		ng.Elts = append([]int{}, g.Elts...)
		gps = append(gps, ng)
	}
	return gps
}

// Release drops all the groups, the engine can then be reused
func (e *Engine) Release() {
	e.groups = nil
	e.values = make(map[int]int)
}
