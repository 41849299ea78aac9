// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package msp

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyOutOfRange
	AnomalyUnknownFunction
	AnomalyUnexpectedDirection
)

// ValidationError represents a packet that passed the checksum but that a
// backpack would not act on
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks a packet's payload against the layout of its function.
// Returns a slice of validation errors (empty if packet is valid).
func ValidatePacket(p *Packet) []ValidationError {
	if p.IsResponse() {
		if p.function == FuncGetBackpackVersion {
			return nil
		}
		return []ValidationError{{
			Type:    AnomalyUnexpectedDirection,
			Message: fmt.Sprintf("Unexpected response for %s", FormatFunction(p.function)),
			Details: map[string]interface{}{"function": p.function},
		}}
	}

	switch p.function {
	case FuncBind:
		return exactLength(p, AddressSize)
	case FuncSetVTXConfig:
		if errs := minLength(p, 1); len(errs) > 0 {
			return errs
		}
		if index := p.payload[0]; index >= ChannelTableLen {
			return []ValidationError{{
				Type:    AnomalyOutOfRange,
				Message: fmt.Sprintf("Channel index %d outside table (max %d)", index, ChannelTableLen-1),
				Details: map[string]interface{}{"index": index, "max": ChannelTableLen - 1},
			}}
		}
	case FuncSetRecordingState:
		return minLength(p, 3)
	case FuncSetHeadTracking:
		return minLength(p, 1)
	case FuncCRSFTelemetry:
		return minLength(p, MinTelemetryPayload)
	case FuncSetRTC:
		return exactLength(p, 7)
	case FuncRadioFrame:
		return minLength(p, AddressSize)
	case FuncSetRadioAddress:
		return exactLength(p, AddressSize)
	case FuncSetOSD, FuncRequestVTXPacket, FuncSetBackpackWiFi, FuncGetBackpackVersion,
		FuncGetChannelIndex, FuncSetChannelIndex, FuncGetRecordingState:
	default:
		return []ValidationError{{
			Type:    AnomalyUnknownFunction,
			Message: fmt.Sprintf("Unknown function 0x%04X", p.function),
			Details: map[string]interface{}{"function": p.function},
		}}
	}

	return nil
}

func minLength(p *Packet, n int) []ValidationError {
	if len(p.payload) >= n {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyLengthMismatch,
		Message: fmt.Sprintf("%s payload too short (minimum %d bytes)", FormatFunction(p.function), n),
		Details: map[string]interface{}{"length": len(p.payload), "minimum": n},
	}}
}

func exactLength(p *Packet, n int) []ValidationError {
	if len(p.payload) == n {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalyLengthMismatch,
		Message: fmt.Sprintf("%s payload must be %d bytes", FormatFunction(p.function), n),
		Details: map[string]interface{}{"received": len(p.payload), "expected": n},
	}}
}
