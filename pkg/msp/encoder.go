// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package msp

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a payload does not fit the length field
var ErrPayloadTooLarge = errors.New("payload too large")

// TotalSize returns the encoded frame size of a packet
func TotalSize(p *Packet) int {
	return FrameOverhead + len(p.payload)
}

// Encode encodes a Packet to wire format. The packet is not modified, so
// packets shared across goroutines may be encoded concurrently.
func Encode(p *Packet) ([]byte, error) {
	if len(p.payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(p.payload), MaxPayloadSize)
	}

	frame := make([]byte, TotalSize(p))
	frame[0] = HeaderStart
	frame[1] = HeaderVersion
	frame[2] = p.direction.headerByte()
	frame[3] = byte(p.function)
	frame[4] = byte(p.function >> 8)
	frame[5] = byte(len(p.payload))
	copy(frame[HeaderSize+FunctionSize+LengthSize:], p.payload)

	// Checksum covers everything between the header and the checksum byte
	crcEnd := len(frame) - ChecksumSize
	frame[crcEnd] = CalculateCRC(frame[HeaderSize:crcEnd])

	return frame, nil
}

// MustEncode encodes a packet and panics on error.
// Use Encode for error handling.
func MustEncode(p *Packet) []byte {
	data, err := Encode(p)
	if err != nil {
		panic(fmt.Sprintf("msp: encode error: %v", err))
	}
	return data
}
