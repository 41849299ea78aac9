// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package msp

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Statistics tracks frame statistics and error rates.
// Counters are atomic so the receive path can update them while the control
// loop or a UI reads a snapshot.
type Statistics struct {
	startTime time.Time

	frames         atomic.Uint64
	packets        atomic.Uint64
	checksumErrors atomic.Uint64
	decodeErrors   atomic.Uint64
	filtered       atomic.Uint64
	unknown        atomic.Uint64
	rejected       atomic.Uint64
	sent           atomic.Uint64
	sendErrors     atomic.Uint64
}

// Snapshot is a point-in-time copy of Statistics
type Snapshot struct {
	Elapsed        time.Duration
	Frames         uint64
	Packets        uint64
	ChecksumErrors uint64
	DecodeErrors   uint64
	Filtered       uint64
	Unknown        uint64
	Rejected       uint64
	Sent           uint64
	SendErrors     uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// RecordFrame counts one radio frame handed to the decoder
func (s *Statistics) RecordFrame() { s.frames.Add(1) }

// RecordPacket counts one valid decoded packet
func (s *Statistics) RecordPacket() { s.packets.Add(1) }

// RecordDecodeError counts a discarded frame, separating checksum failures
func (s *Statistics) RecordDecodeError(err error) {
	if errors.Is(err, ErrChecksum) {
		s.checksumErrors.Add(1)
		return
	}
	s.decodeErrors.Add(1)
}

// RecordFiltered counts a frame dropped by the address filter
func (s *Statistics) RecordFiltered() { s.filtered.Add(1) }

// RecordUnknown counts a packet with an unrecognised function code
func (s *Statistics) RecordUnknown() { s.unknown.Add(1) }

// RecordRejected counts a recognised packet with an unusable payload
func (s *Statistics) RecordRejected() { s.rejected.Add(1) }

// RecordSend counts an outbound frame and its result
func (s *Statistics) RecordSend(err error) {
	if err != nil {
		s.sendErrors.Add(1)
		return
	}
	s.sent.Add(1)
}

// Snapshot returns the current counters with rates calculated
func (s *Statistics) Snapshot() Snapshot {
	snap := Snapshot{
		Elapsed:        time.Since(s.startTime),
		Frames:         s.frames.Load(),
		Packets:        s.packets.Load(),
		ChecksumErrors: s.checksumErrors.Load(),
		DecodeErrors:   s.decodeErrors.Load(),
		Filtered:       s.filtered.Load(),
		Unknown:        s.unknown.Load(),
		Rejected:       s.rejected.Load(),
		Sent:           s.sent.Load(),
		SendErrors:     s.sendErrors.Load(),
	}
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.PacketRate = float64(snap.Packets) / secs
		snap.ErrorRate = float64(snap.ChecksumErrors+snap.DecodeErrors) / secs
	}
	return snap
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var validPercent float64
	if snap.Frames > 0 {
		validPercent = float64(snap.Packets) * 100.0 / float64(snap.Frames)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", snap.Elapsed.Seconds())
	result += fmt.Sprintf("Frames:          %8d\n", snap.Frames)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", snap.Packets, validPercent)

	if snap.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", snap.ChecksumErrors)
	}
	if snap.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", snap.DecodeErrors)
	}
	if snap.Filtered > 0 {
		result += fmt.Sprintf("Filtered:        %8d\n", snap.Filtered)
	}
	if snap.Unknown > 0 {
		result += fmt.Sprintf("Unknown Funcs:   %8d\n", snap.Unknown)
	}
	if snap.Rejected > 0 {
		result += fmt.Sprintf("Rejected:        %8d\n", snap.Rejected)
	}
	if snap.Sent > 0 || snap.SendErrors > 0 {
		result += fmt.Sprintf("Sent:            %8d (%d failed)\n", snap.Sent, snap.SendErrors)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", snap.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", snap.ErrorRate)
	result += "================================\n"

	return result
}
