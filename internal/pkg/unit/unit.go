//
// Copyright (c) 2020-2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package unit

import "fmt"

const (
	// DATA represents the unit used for data volume (e.g., bytes)
	DATA = iota
)

// factor between two consecutive scales of a unit
const factor = 1000

func getDataUnits() map[int]string {
	return map[int]string{
		0: "B",
		1: "KB",
		2: "MB",
		3: "GB",
		4: "TB",
	}
}

func getUnits(unitType int) map[int]string {
	if unitType == DATA {
		return getDataUnits()
	}
	return nil
}

// ToString converts data about a dataset's unit to a string that is readable
func ToString(unitType int, unitScale int) string {
	return getUnits(unitType)[unitScale]
}

// IsValidScale checks whether a scale exists for a type of unit
func IsValidScale(unitType int, unitScale int) bool {
	_, ok := getUnits(unitType)[unitScale]
	return ok
}

// Scale converts a value expressed with the smallest scale of a unit to the
// largest scale that keeps the value greater or equal to 1
func Scale(unitType int, value float64) (float64, int) {
	unitScale := 0
	for value >= factor && IsValidScale(unitType, unitScale+1) {
		value /= factor
		unitScale++
	}
	return value, unitScale
}

// Bytes returns a human-readable version of an amount of data, e.g., 1.50 KB
func Bytes(n int) string {
	if n < factor {
		return fmt.Sprintf("%d B", n)
	}
	value, unitScale := Scale(DATA, float64(n))
	return fmt.Sprintf("%.2f %s", value, ToString(DATA, unitScale))
}
