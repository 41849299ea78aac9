// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vrxtest provides a vrx.Module that records every call, for tests
// and dry runs.
package vrxtest

import (
	"sync"
	"time"

	"github.com/Thermoquad/backpack/pkg/msp"
)

// Recording is one SetRecordingState call
type Recording struct {
	Active bool
	Delay  uint16
}

// Calls is a snapshot of everything a Recorder has seen
type Calls struct {
	Initialized  int
	Polls        int
	Channels     []uint8
	HeadTracking []bool
	Recordings   []Recording
	OSD          []*msp.Packet
	Battery      [][]byte
	Link         [][]byte
	Clocks       []time.Time
}

// Recorder implements vrx.Module by recording calls
type Recorder struct {
	// InitErr, if set, is returned by Initialize
	InitErr error

	mu    sync.Mutex
	calls Calls
}

// New creates an empty recorder
func New() *Recorder {
	return &Recorder{}
}

// Initialize records the call
func (r *Recorder) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Initialized++
	return r.InitErr
}

// Poll records the call
func (r *Recorder) Poll(time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Polls++
}

// SetRecordingState records the call
func (r *Recorder) SetRecordingState(active bool, delay uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Recordings = append(r.calls.Recordings, Recording{Active: active, Delay: delay})
}

// SetOnScreenDisplay records the call
func (r *Recorder) SetOnScreenDisplay(p *msp.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.OSD = append(r.calls.OSD, p)
}

// SendBatteryTelemetry records the call
func (r *Recorder) SendBatteryTelemetry(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Battery = append(r.calls.Battery, append([]byte(nil), payload...))
}

// SendLinkTelemetry records the call
func (r *Recorder) SendLinkTelemetry(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Link = append(r.calls.Link, append([]byte(nil), payload...))
}

// SendChannelIndex records the call
func (r *Recorder) SendChannelIndex(index uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Channels = append(r.calls.Channels, index)
}

// SetHeadTrackingEnabled records the call
func (r *Recorder) SetHeadTrackingEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.HeadTracking = append(r.calls.HeadTracking, enabled)
}

// SyncClock records the call
func (r *Recorder) SyncClock(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Clocks = append(r.calls.Clocks, t)
}

// Calls returns a copy of the recorded calls
func (r *Recorder) Calls() Calls {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.calls
	c.Channels = append([]uint8(nil), c.Channels...)
	c.HeadTracking = append([]bool(nil), c.HeadTracking...)
	c.Recordings = append([]Recording(nil), c.Recordings...)
	c.OSD = append([]*msp.Packet(nil), c.OSD...)
	c.Battery = append([][]byte(nil), c.Battery...)
	c.Link = append([][]byte(nil), c.Link...)
	c.Clocks = append([]time.Time(nil), c.Clocks...)
	return c
}
