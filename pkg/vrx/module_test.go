// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vrx

import "testing"

func TestChannelName(t *testing.T) {
	tests := []struct {
		index    uint8
		expected string
	}{
		{0, "A1"},
		{7, "A8"},
		{8, "B1"},
		{39, "R8"},
		{47, "L8"},
		{48, "?"},
	}

	for _, tt := range tests {
		if got := ChannelName(tt.index); got != tt.expected {
			t.Errorf("Index %d: expected %s, got %s", tt.index, tt.expected, got)
		}
	}
}
