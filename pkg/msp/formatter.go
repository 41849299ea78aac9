// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package msp

import (
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	fn := FormatFunction(p.function)

	result := fmt.Sprintf("[%s] %s %s (0x%04X) len=%d crc=0x%02X\n",
		timestamp, strings.ToUpper(p.direction.String()), fn, p.function, len(p.payload), p.crc)
	result += FormatPayload(p.function, p.payload)

	return result
}

// FormatFunction returns the human-readable name for a function code
func FormatFunction(function uint16) string {
	switch function {
	case FuncBind:
		return "BIND"
	case FuncGetBackpackVersion:
		return "GET_BACKPACK_VERSION"
	case FuncCRSFTelemetry:
		return "CRSF_TLM"
	case FuncSetVTXConfig:
		return "SET_VTX_CONFIG"
	case FuncSetOSD:
		return "SET_OSD"
	case FuncRequestVTXPacket:
		return "REQU_VTX_PKT"
	case FuncSetBackpackWiFi:
		return "SET_VRX_BACKPACK_WIFI_MODE"
	case FuncRadioFrame:
		return "RADIO_FRAME"
	case FuncSetRadioAddress:
		return "SET_RADIO_ADDRESS"
	case FuncGetChannelIndex:
		return "GET_CHANNEL_INDEX"
	case FuncSetChannelIndex:
		return "SET_CHANNEL_INDEX"
	case FuncGetRecordingState:
		return "GET_RECORDING_STATE"
	case FuncSetRecordingState:
		return "SET_RECORDING_STATE"
	case FuncSetHeadTracking:
		return "SET_HEAD_TRACKING"
	case FuncSetRTC:
		return "SET_RTC"
	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats the payload based on function code
func FormatPayload(function uint16, payload []byte) string {
	switch function {
	case FuncBind, FuncSetRadioAddress:
		if len(payload) == AddressSize {
			return fmt.Sprintf("  Address: %s\n", formatAddress(payload))
		}

	case FuncSetVTXConfig, FuncSetChannelIndex:
		if len(payload) >= 1 {
			index := payload[0]
			if index >= ChannelTableLen {
				return fmt.Sprintf("  Channel index: %d (out of table)\n", index)
			}
			return fmt.Sprintf("  Channel index: %d (band %c, channel %d)\n", index, formatBand(index), index%8+1)
		}

	case FuncSetRecordingState:
		if len(payload) >= 3 {
			delay := uint16(payload[1]) | uint16(payload[2])<<8
			state := "STOP"
			if payload[0] != 0 {
				state = "START"
			}
			return fmt.Sprintf("  Recording: %s, Delay: %d s\n", state, delay)
		}

	case FuncSetHeadTracking:
		if len(payload) >= 1 {
			if payload[0] != 0 {
				return "  Head tracking: enabled\n"
			}
			return "  Head tracking: disabled\n"
		}

	case FuncCRSFTelemetry:
		if len(payload) >= MinTelemetryPayload {
			return fmt.Sprintf("  CRSF subtype: 0x%02X, Frame: %s (0x%02X), %d bytes\n",
				payload[0], formatCRSFFrame(payload[2]), payload[2], len(payload)-1)
		}
		return fmt.Sprintf("  CRSF frame too short (%d bytes)\n", len(payload))

	case FuncRadioFrame:
		if len(payload) >= AddressSize {
			return fmt.Sprintf("  Peer: %s, Frame: %d bytes\n", formatAddress(payload[:AddressSize]), len(payload)-AddressSize)
		}

	case FuncGetBackpackVersion:
		if len(payload) > 0 {
			return fmt.Sprintf("  Version: %s\n", strings.TrimRight(string(payload), "\x00"))
		}
		return "  (no payload)\n"

	case FuncSetBackpackWiFi:
		return "  (no payload)\n"
	}

	if len(payload) == 0 {
		return ""
	}

	// Default: hex dump
	result := "  Payload: "
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

func formatAddress(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}

func formatBand(index uint8) byte {
	return "ABEFRL"[index/8]
}

func formatCRSFFrame(frameType byte) string {
	switch frameType {
	case CRSFFrameBattery:
		return "BATTERY_SENSOR"
	case CRSFFrameLinkStatistics:
		return "LINK_STATISTICS"
	default:
		return "OTHER"
	}
}
