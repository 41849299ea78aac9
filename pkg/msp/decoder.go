// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package msp

import (
	"errors"
	"fmt"
	"time"
)

// Decode errors. A decoder that returns one of these has already reset to idle.
var (
	ErrChecksum  = errors.New("checksum mismatch")
	ErrBadHeader = errors.New("malformed header")
)

// Decoder implements the packet decoder state machine.
// It is fed one byte at a time and keeps its state across calls, so a packet
// may arrive split over any number of radio frames.
type Decoder struct {
	state     int
	buffer    [FunctionSize + LengthSize + MaxPayloadSize]byte
	bufferLen int
	remaining int
	direction Direction
	function  uint16
	length    int
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{state: stateIdle}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferLen = 0
	d.remaining = 0
	d.function = 0
	d.length = 0
}

// Feed consumes one byte and returns a completed, checksum-validated packet,
// or nil if more bytes are needed. Corrupt frames are dropped silently.
func (d *Decoder) Feed(b byte) *Packet {
	p, _ := d.DecodeByte(b)
	return p
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed packet, or nil if the packet is incomplete.
// Returns an error when a frame is discarded.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch d.state {
	case stateIdle:
		// Waiting for '$'
		if b == HeaderStart {
			d.state = stateHeaderVersion
		}
		return nil, nil

	case stateHeaderVersion:
		if b != HeaderVersion {
			return nil, d.resync(b)
		}
		d.state = stateDirection
		return nil, nil

	case stateDirection:
		switch b {
		case HeaderCommand:
			d.direction = DirectionCommand
		case HeaderResponse:
			d.direction = DirectionResponse
		default:
			return nil, d.resync(b)
		}
		d.bufferLen = 0
		d.state = stateFunctionLow
		return nil, nil

	case stateFunctionLow:
		d.function = uint16(b)
		d.push(b)
		d.state = stateFunctionHigh
		return nil, nil

	case stateFunctionHigh:
		d.function |= uint16(b) << 8
		d.push(b)
		d.state = stateLength
		return nil, nil

	case stateLength:
		d.length = int(b)
		d.remaining = d.length
		d.push(b)
		if d.length == 0 {
			d.state = stateChecksum
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.push(b)
		d.remaining--
		if d.remaining == 0 {
			d.state = stateChecksum
		}
		return nil, nil

	case stateChecksum:
		calculated := CalculateCRC(d.buffer[:d.bufferLen])
		if b != calculated {
			err := fmt.Errorf("%w: expected 0x%02X, got 0x%02X (function 0x%04X)", ErrChecksum, calculated, b, d.function)
			d.Reset()
			return nil, err
		}

		payloadStart := FunctionSize + LengthSize
		p := &Packet{
			direction: d.direction,
			function:  d.function,
			crc:       b,
			timestamp: time.Now(),
		}
		if d.length > 0 {
			p.payload = make([]byte, d.length)
			copy(p.payload, d.buffer[payloadStart:payloadStart+d.length])
		}

		d.Reset()
		return p, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// resync drops a partial header. A '$' starts a new header immediately so
// that "$$X<" still synchronises.
func (d *Decoder) resync(b byte) error {
	state := d.state
	d.Reset()
	if b == HeaderStart {
		d.state = stateHeaderVersion
	}
	return fmt.Errorf("%w: unexpected byte 0x%02X in state %d", ErrBadHeader, b, state)
}

func (d *Decoder) push(b byte) {
	d.buffer[d.bufferLen] = b
	d.bufferLen++
}
