// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vrx defines the contract between the backpack core and a video
// receiver driver. Exactly one driver is compiled into a build; the core
// only calls these methods and never inspects driver state.
package vrx

import (
	"time"

	"github.com/Thermoquad/backpack/pkg/msp"
)

// Module is a video receiver driver.
//
// Poll runs once per control-loop tick and must return promptly. The other
// methods may be called from the control loop or, for SetOnScreenDisplay and
// the telemetry senders, from the radio receive path; none may block for
// longer than one tick.
type Module interface {
	// Initialize prepares the hardware. Called once at startup.
	Initialize() error
	// Poll performs cooperative periodic work
	Poll(now time.Time)
	// SetRecordingState starts or stops DVR recording after delay seconds
	SetRecordingState(active bool, delay uint16)
	// SetOnScreenDisplay passes an OSD packet through to the receiver
	SetOnScreenDisplay(p *msp.Packet)
	// SendBatteryTelemetry forwards a CRSF battery frame payload
	SendBatteryTelemetry(payload []byte)
	// SendLinkTelemetry forwards a CRSF link statistics frame payload
	SendLinkTelemetry(payload []byte)
	// SendChannelIndex tunes to an entry of the 48-channel table
	SendChannelIndex(index uint8)
	// SetHeadTrackingEnabled toggles head tracking
	SetHeadTrackingEnabled(enabled bool)
	// SyncClock sets the receiver's clock. Only called in recovery mode.
	SyncClock(t time.Time)
}

// ChannelTableLen is the number of entries in the band/channel table
const ChannelTableLen = msp.ChannelTableLen

// Bands in channel table order
const Bands = "ABEFRL"

// ChannelName returns the band/channel label of a table index, e.g. "R8"
func ChannelName(index uint8) string {
	if index >= ChannelTableLen {
		return "?"
	}
	return string(Bands[index/8]) + string(rune('1'+index%8))
}
