// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/Thermoquad/backpack/pkg/identity"
)

// Slot holds at most one pending value. One goroutine posts, one takes;
// a later post overwrites an untaken one.
type Slot[T any] struct {
	p atomic.Pointer[T]
}

// Post stores v as the pending value
func (s *Slot[T]) Post(v T) {
	s.p.Store(&v)
}

// Take returns the pending value and clears the slot
func (s *Slot[T]) Take() (T, bool) {
	p := s.p.Swap(nil)
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Pending reports whether a value is waiting
func (s *Slot[T]) Pending() bool {
	return s.p.Load() != nil
}

// RecordingCommand is a pending DVR start/stop
type RecordingCommand struct {
	Active bool
	Delay  uint16
}

// Mailbox carries commands from the radio receive path to the control loop,
// one slot per command kind. The receive path only posts; the loop only
// takes. ClockSync and Restart are posted by the recovery service.
type Mailbox struct {
	Channel      Slot[uint8]
	HeadTracking Slot[bool]
	Recording    Slot[RecordingCommand]
	Bind         Slot[identity.Address]
	Recovery     Slot[struct{}]
	ClockSync    Slot[time.Time]
	Restart      Slot[struct{}]
}
