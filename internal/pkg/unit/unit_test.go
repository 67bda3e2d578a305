//
// Copyright (c) 2021, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package unit

import "testing"

func TestBytes(t *testing.T) {
	tests := []struct {
		value    int
		expected string
	}{
		{value: 0, expected: "0 B"},
		{value: 999, expected: "999 B"},
		{value: 1500, expected: "1.50 KB"},
		{value: 2000000, expected: "2.00 MB"},
		{value: 3000000000000000, expected: "3000.00 TB"},
	}

	for _, tt := range tests {
		str := Bytes(tt.value)
		if str != tt.expected {
			t.Fatalf("Bytes(%d) returned %s instead of %s", tt.value, str, tt.expected)
		}
	}
}

func TestScale(t *testing.T) {
	value, unitScale := Scale(DATA, 2500000)
	if value != 2.5 || ToString(DATA, unitScale) != "MB" {
		t.Fatalf("Scale() returned %f %s", value, ToString(DATA, unitScale))
	}
	if IsValidScale(DATA, 5) {
		t.Fatalf("invalid scale accepted")
	}
}
