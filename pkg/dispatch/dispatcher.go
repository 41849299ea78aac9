// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dispatch routes decoded packets to their effect.
//
// Cheap pass-through commands (OSD, telemetry) call the video receiver
// module directly. Everything else is posted to the Mailbox and applied by
// the control loop on its next tick.
package dispatch

import (
	"log/slog"
	"sync/atomic"

	"github.com/Thermoquad/backpack/pkg/binding"
	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/msp"
	"github.com/Thermoquad/backpack/pkg/vrx"
)

// StateReader exposes the connection state to the receive path
type StateReader interface {
	State() binding.State
}

// Replier sends a response packet back over the radio
type Replier interface {
	Send(dst identity.Address, p *msp.Packet) error
}

// Dispatcher handles packets delivered by the radio transport
type Dispatcher struct {
	state   StateReader
	mailbox *Mailbox
	module  vrx.Module
	replier Replier
	version string
	stats   *msp.Statistics
	logger  *slog.Logger

	gotInitialPacket atomic.Bool
}

// Options configures a Dispatcher
type Options struct {
	State   StateReader
	Mailbox *Mailbox
	Module  vrx.Module
	// Replier answers version requests. Nil disables replies.
	Replier Replier
	// Version is reported in GET_BACKPACK_VERSION responses
	Version string
	// Stats receives unknown and rejected counts. Nil allocates a private one.
	Stats  *msp.Statistics
	Logger *slog.Logger
}

// New creates a dispatcher
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		state:   opts.State,
		mailbox: opts.Mailbox,
		module:  opts.Module,
		replier: opts.Replier,
		version: opts.Version,
		stats:   opts.Stats,
		logger:  opts.Logger,
	}
	if d.mailbox == nil {
		d.mailbox = &Mailbox{}
	}
	if d.stats == nil {
		d.stats = msp.NewStatistics()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Mailbox returns the pending-command mailbox
func (d *Dispatcher) Mailbox() *Mailbox {
	return d.mailbox
}

// GotInitialPacket reports whether any packet has arrived since startup
func (d *Dispatcher) GotInitialPacket() bool {
	return d.gotInitialPacket.Load()
}

// Handle routes one packet. It runs on the radio receive path.
func (d *Dispatcher) Handle(src identity.Address, p *msp.Packet) {
	d.gotInitialPacket.Store(true)

	if d.state.State() == binding.StateBinding {
		d.handleBinding(src, p)
		return
	}

	if !p.IsCommand() {
		d.logger.Debug("ignored response packet", "packet", p.String())
		return
	}

	switch p.Function() {
	case msp.FuncSetVTXConfig:
		d.handleChannel(p)

	case msp.FuncSetBackpackWiFi:
		d.logger.Info("recovery mode requested", "src", src.String())
		d.mailbox.Recovery.Post(struct{}{})

	case msp.FuncSetRecordingState:
		r := p.Reader()
		cmd := RecordingCommand{Active: r.Uint8() != 0, Delay: r.Uint16()}
		if r.Short() {
			d.reject(p, "recording payload too short")
			return
		}
		d.logger.Debug("recording state", "active", cmd.Active, "delay", cmd.Delay)
		d.mailbox.Recording.Post(cmd)

	case msp.FuncSetOSD:
		d.module.SetOnScreenDisplay(p)

	case msp.FuncSetHeadTracking:
		r := p.Reader()
		enabled := r.Uint8() != 0
		if r.Short() {
			d.reject(p, "head tracking payload empty")
			return
		}
		d.logger.Debug("head tracking", "enabled", enabled)
		d.mailbox.HeadTracking.Post(enabled)

	case msp.FuncCRSFTelemetry:
		d.handleTelemetry(p)

	case msp.FuncGetBackpackVersion:
		d.handleVersion(src)

	default:
		d.stats.RecordUnknown()
		d.logger.Debug("unknown function", "function", msp.FormatFunction(p.Function()), "code", p.Function())
	}
}

func (d *Dispatcher) handleBinding(src identity.Address, p *msp.Packet) {
	if p.Function() != msp.FuncBind {
		d.logger.Debug("ignored packet while binding", "packet", p.String())
		return
	}
	if p.PayloadSize() != identity.AddressSize {
		d.reject(p, "bind payload must be 6 bytes")
		return
	}

	var addr identity.Address
	copy(addr[:], p.Payload())
	d.logger.Info("bind received", "address", addr.String(), "src", src.String())
	d.mailbox.Bind.Post(addr)
}

func (d *Dispatcher) handleChannel(p *msp.Packet) {
	r := p.Reader()
	index := r.Uint8()
	if r.Short() {
		d.reject(p, "channel payload empty")
		return
	}
	if index >= msp.ChannelTableLen {
		// Frequency-in-MHz payloads land here
		d.reject(p, "channel index outside table")
		return
	}
	d.logger.Debug("channel index", "index", index, "channel", vrx.ChannelName(index))
	d.mailbox.Channel.Post(index)
}

func (d *Dispatcher) handleTelemetry(p *msp.Packet) {
	payload := p.Payload()
	if len(payload) < msp.MinTelemetryPayload {
		d.reject(p, "telemetry frame too short")
		return
	}

	switch payload[2] {
	case msp.CRSFFrameBattery:
		d.module.SendBatteryTelemetry(payload)
	case msp.CRSFFrameLinkStatistics:
		d.module.SendLinkTelemetry(payload)
	default:
		d.logger.Debug("ignored telemetry frame", "type", payload[2])
	}
}

func (d *Dispatcher) handleVersion(src identity.Address) {
	if d.replier == nil {
		return
	}
	if err := d.replier.Send(src, msp.NewVersionResponse(d.version)); err != nil {
		d.logger.Debug("version reply failed", "error", err)
	}
}

func (d *Dispatcher) reject(p *msp.Packet, reason string) {
	d.stats.RecordRejected()
	d.logger.Debug("rejected packet", "packet", p.String(), "reason", reason)
}
