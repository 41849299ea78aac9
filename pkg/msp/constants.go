// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package msp implements the backpack wire protocol: an MSP-style framed
// packet carried over the radio link between a transmitter and a VRx backpack.
//
// Frame layout:
//
//	+-----+-----+-----+--------+--------+--------+-----------+-------+
//	| '$' | 'X' | dir | fn lo  | fn hi  | length |  payload  |  crc  |
//	+-----+-----+-----+--------+--------+--------+-----------+-------+
//
// dir is '<' for commands and '>' for responses. The checksum is CRC-8/DVB-S2
// over the function, length and payload bytes.
package msp

// Protocol framing bytes
const (
	HeaderStart     = '$'
	HeaderVersion   = 'X'
	HeaderCommand   = '<'
	HeaderResponse  = '>'
	HeaderSize      = 3
	FunctionSize    = 2
	LengthSize      = 1
	ChecksumSize    = 1
	FrameOverhead   = HeaderSize + FunctionSize + LengthSize + ChecksumSize
	MaxPayloadSize  = 255 // largest value of the 1-byte length field
	MaxFrameSize    = FrameOverhead + MaxPayloadSize
	AddressSize     = 6
	ChannelTableLen = 48 // A, B, E, F, R, L bands x 8 channels
)

// Function codes - binding and link management
const (
	FuncBind               = 0x0009
	FuncGetBackpackVersion = 0x0010
	FuncCRSFTelemetry      = 0x0011
	FuncSetVTXConfig       = 0x0059
	FuncSetOSD             = 0x00B6
	FuncRequestVTXPacket   = 0x00B8
	FuncSetBackpackWiFi    = 0x00B9
	FuncRadioFrame         = 0x00F0 // serial bridge encapsulation
	FuncSetRadioAddress    = 0x00F1 // serial bridge local address
)

// Function codes - VRx backpack opcodes
const (
	FuncGetChannelIndex   = 0x0300
	FuncSetChannelIndex   = 0x0301
	FuncGetRecordingState = 0x0304
	FuncSetRecordingState = 0x0305
	FuncSetHeadTracking   = 0x030D
	FuncSetRTC            = 0x030E
)

// CRSF frame types carried inside FuncCRSFTelemetry payloads
const (
	CRSFFrameBattery        = 0x08
	CRSFFrameLinkStatistics = 0x14
)

// Minimum telemetry-forward payload: subtype, length, frame type, one data byte
const MinTelemetryPayload = 4

// Decoder states (internal)
const (
	stateIdle = iota
	stateHeaderVersion
	stateDirection
	stateFunctionLow
	stateFunctionHigh
	stateLength
	statePayload
	stateChecksum
)
