// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logvrx is a video receiver driver with no hardware behind it.
// Every call is logged, which makes it the driver for host simulation.
package logvrx

import (
	"log/slog"
	"time"

	"github.com/Thermoquad/backpack/pkg/msp"
	"github.com/Thermoquad/backpack/pkg/vrx"
)

// Module logs video receiver commands
type Module struct {
	logger *slog.Logger
}

var _ vrx.Module = (*Module)(nil)

// New creates a logging module
func New(logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{logger: logger.With("module", "log")}
}

// Initialize logs startup
func (m *Module) Initialize() error {
	m.logger.Info("video receiver ready")
	return nil
}

// Poll does nothing
func (m *Module) Poll(time.Time) {}

// SetRecordingState logs the recording command
func (m *Module) SetRecordingState(active bool, delay uint16) {
	m.logger.Info("set recording state", "active", active, "delay_s", delay)
}

// SetOnScreenDisplay logs the OSD packet size
func (m *Module) SetOnScreenDisplay(p *msp.Packet) {
	m.logger.Debug("set osd", "bytes", p.PayloadSize())
}

// SendBatteryTelemetry logs the frame
func (m *Module) SendBatteryTelemetry(payload []byte) {
	m.logger.Debug("battery telemetry", "bytes", len(payload))
}

// SendLinkTelemetry logs the frame
func (m *Module) SendLinkTelemetry(payload []byte) {
	m.logger.Debug("link telemetry", "bytes", len(payload))
}

// SendChannelIndex logs the channel change
func (m *Module) SendChannelIndex(index uint8) {
	m.logger.Info("set channel", "index", index, "channel", vrx.ChannelName(index))
}

// SetHeadTrackingEnabled logs the toggle
func (m *Module) SetHeadTrackingEnabled(enabled bool) {
	m.logger.Info("set head tracking", "enabled", enabled)
}

// SyncClock logs the clock
func (m *Module) SyncClock(t time.Time) {
	m.logger.Info("sync clock", "time", t.UTC().Format(time.RFC3339))
}
