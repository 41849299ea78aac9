// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package msp

import "time"

// Command builder functions create Packet structs ready for encoding.
// They pin the payload layout for each function so transmitter-side tools
// and tests build exactly what the backpack dispatcher expects.

// NewBind creates a BIND command (0x0009) carrying the transmitter's
// 6-byte hardware address.
func NewBind(address [AddressSize]byte) *Packet {
	return NewCommand(FuncBind, address[:])
}

// NewChannelIndex creates a SET_VTX_CONFIG command (0x0059) selecting an
// entry of the 48-channel table. Indexes >= ChannelTableLen are encoded as
// given; the backpack rejects them.
func NewChannelIndex(index uint8) *Packet {
	return NewCommand(FuncSetVTXConfig, []byte{index})
}

// NewRecordingState creates a SET_RECORDING_STATE command (0x0305).
// Payload: [state][delay lo][delay hi], delay in seconds.
func NewRecordingState(active bool, delay uint16) *Packet {
	state := byte(0)
	if active {
		state = 1
	}
	return NewCommand(FuncSetRecordingState, []byte{state, byte(delay), byte(delay >> 8)})
}

// NewHeadTracking creates a SET_HEAD_TRACKING command (0x030D).
func NewHeadTracking(enabled bool) *Packet {
	if enabled {
		return NewCommand(FuncSetHeadTracking, []byte{1})
	}
	return NewCommand(FuncSetHeadTracking, []byte{0})
}

// NewTelemetryForward creates a CRSF_TLM command (0x0011) wrapping a raw CRSF
// frame. The payload is [subtype][frame...] where the CRSF frame itself is
// [length][type][data...], placing the frame type at payload offset 2.
func NewTelemetryForward(subtype byte, crsfFrame []byte) *Packet {
	payload := make([]byte, 0, 1+len(crsfFrame))
	payload = append(payload, subtype)
	payload = append(payload, crsfFrame...)
	return NewCommand(FuncCRSFTelemetry, payload)
}

// NewOSD creates a SET_OSD command (0x00B6). The payload is passed through
// to the VRx unchanged.
func NewOSD(payload []byte) *Packet {
	return NewCommand(FuncSetOSD, payload)
}

// NewStatusRequest creates a REQU_VTX_PKT command (0x00B8) asking the
// transmitter to resend the current channel.
func NewStatusRequest() *Packet {
	return NewCommand(FuncRequestVTXPacket, []byte{0})
}

// NewRecoveryMode creates a SET_VRX_BACKPACK_WIFI_MODE command (0x00B9).
// The backpack restarts into recovery (network) mode.
func NewRecoveryMode() *Packet {
	return NewCommand(FuncSetBackpackWiFi, nil)
}

// NewClockSync creates a SET_RTC command (0x030E).
// Payload: [year lo][year hi][month][day][hour][minute][second], UTC.
func NewClockSync(t time.Time) *Packet {
	t = t.UTC()
	year := uint16(t.Year())
	return NewCommand(FuncSetRTC, []byte{
		byte(year), byte(year >> 8),
		byte(t.Month()), byte(t.Day()),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
	})
}

// NewVersionRequest creates a GET_BACKPACK_VERSION command (0x0010).
func NewVersionRequest() *Packet {
	return NewCommand(FuncGetBackpackVersion, nil)
}

// NewVersionResponse creates the GET_BACKPACK_VERSION response carrying a
// NUL-terminated version string.
func NewVersionResponse(version string) *Packet {
	payload := make([]byte, 0, len(version)+1)
	payload = append(payload, version...)
	payload = append(payload, 0)
	return NewResponse(FuncGetBackpackVersion, payload)
}

// NewRadioFrame creates a RADIO_FRAME packet (0x00F0) used between the host
// and a serial radio bridge. Payload: [peer address (6)][radio frame bytes].
func NewRadioFrame(peer [AddressSize]byte, frame []byte) *Packet {
	payload := make([]byte, 0, AddressSize+len(frame))
	payload = append(payload, peer[:]...)
	payload = append(payload, frame...)
	return NewCommand(FuncRadioFrame, payload)
}

// NewRadioAddress creates a SET_RADIO_ADDRESS command (0x00F1) telling a
// serial radio bridge which hardware address to transmit and receive as.
func NewRadioAddress(self [AddressSize]byte) *Packet {
	return NewCommand(FuncSetRadioAddress, self[:])
}

// ParseRadioFrame splits a RADIO_FRAME payload into peer address and frame bytes
func ParseRadioFrame(p *Packet) (peer [AddressSize]byte, frame []byte, ok bool) {
	if p.function != FuncRadioFrame || len(p.payload) < AddressSize {
		return peer, nil, false
	}
	copy(peer[:], p.payload[:AddressSize])
	return peer, p.payload[AddressSize:], true
}
