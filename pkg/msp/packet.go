// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package msp

import (
	"fmt"
	"time"
)

// Direction distinguishes commands (requests) from responses
type Direction uint8

// Direction values
const (
	DirectionCommand Direction = iota
	DirectionResponse
)

// String returns the direction name
func (d Direction) String() string {
	if d == DirectionResponse {
		return "response"
	}
	return "command"
}

func (d Direction) headerByte() byte {
	if d == DirectionResponse {
		return HeaderResponse
	}
	return HeaderCommand
}

// Packet represents a decoded protocol packet
type Packet struct {
	direction Direction
	function  uint16
	payload   []byte
	crc       uint8
	timestamp time.Time
}

// NewCommand creates a command packet. The payload is copied.
func NewCommand(function uint16, payload []byte) *Packet {
	return newPacket(DirectionCommand, function, payload)
}

// NewResponse creates a response packet. The payload is copied.
func NewResponse(function uint16, payload []byte) *Packet {
	return newPacket(DirectionResponse, function, payload)
}

func newPacket(dir Direction, function uint16, payload []byte) *Packet {
	p := &Packet{
		direction: dir,
		function:  function,
		timestamp: time.Now(),
	}
	if len(payload) > 0 {
		p.payload = append(make([]byte, 0, len(payload)), payload...)
	}
	return p
}

// Direction returns whether the packet is a command or a response
func (p *Packet) Direction() Direction {
	return p.direction
}

// IsCommand returns true for request packets
func (p *Packet) IsCommand() bool {
	return p.direction == DirectionCommand
}

// IsResponse returns true for response packets
func (p *Packet) IsResponse() bool {
	return p.direction == DirectionResponse
}

// Function returns the packet's function code
func (p *Packet) Function() uint16 {
	return p.function
}

// Payload returns the payload bytes. Callers must not modify the slice.
func (p *Packet) Payload() []byte {
	return p.payload
}

// PayloadSize returns the payload length
func (p *Packet) PayloadSize() int {
	return len(p.payload)
}

// CRC returns the packet's checksum. Only set on decoded packets.
func (p *Packet) CRC() uint8 {
	return p.crc
}

// Timestamp returns the packet's creation or decode time
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// Reader returns a sequential reader over the payload
func (p *Packet) Reader() *Reader {
	return &Reader{data: p.payload}
}

// Equal reports whether two packets carry the same direction, function and payload
func (p *Packet) Equal(o *Packet) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.direction != o.direction || p.function != o.function || len(p.payload) != len(o.payload) {
		return false
	}
	for i := range p.payload {
		if p.payload[i] != o.payload[i] {
			return false
		}
	}
	return true
}

// String returns a short description of the packet
func (p *Packet) String() string {
	return fmt.Sprintf("%s %s (0x%04X) len=%d", p.direction, FormatFunction(p.function), p.function, len(p.payload))
}

// Reader reads payload fields in order. Reads past the end return zero and
// set the short flag.
type Reader struct {
	data  []byte
	pos   int
	short bool
}

// Uint8 returns the next payload byte
func (r *Reader) Uint8() byte {
	if r.pos >= len(r.data) {
		r.short = true
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

// Uint16 returns the next two payload bytes as a little-endian value
func (r *Reader) Uint16() uint16 {
	lo := r.Uint8()
	hi := r.Uint8()
	return uint16(lo) | uint16(hi)<<8
}

// Remaining returns the unread payload bytes
func (r *Reader) Remaining() []byte {
	if r.pos >= len(r.data) {
		return nil
	}
	return r.data[r.pos:]
}

// Short returns true if any read ran past the end of the payload
func (r *Reader) Short() bool {
	return r.short
}
