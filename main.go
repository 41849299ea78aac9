// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Backpack - VRx Backpack
//
// Pairs with a transmitter over a short-range radio and relays channel,
// recording, head-tracking, OSD and telemetry commands to video goggles.

package main

import (
	"os"

	"github.com/Thermoquad/backpack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
