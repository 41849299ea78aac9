// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package backpack wires the identity store, binding machine, radio
// transport, dispatcher and video receiver module into the backpack
// control loop.
//
// Setup runs once per boot. Tick runs once per loop iteration and is the
// only place that applies mailbox commands, commits identity changes and
// drives the module.
package backpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/backpack/pkg/binding"
	"github.com/Thermoquad/backpack/pkg/config"
	"github.com/Thermoquad/backpack/pkg/dispatch"
	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/msp"
	"github.com/Thermoquad/backpack/pkg/radio"
	"github.com/Thermoquad/backpack/pkg/vrx"
)

var (
	// ErrRestart asks the host to re-boot the device
	ErrRestart = errors.New("restart requested")
	// ErrNotSetup is returned by Tick before Setup
	ErrNotSetup = errors.New("device not set up")
)

// Recovery is the network-mode service started instead of the radio when
// the device boots into recovery
type Recovery interface {
	Start(mailbox *dispatch.Mailbox, record identity.Record) error
	Stop() error
}

// Options configures a Device
type Options struct {
	Config   *config.Config
	Provider identity.Provider
	Driver   radio.Driver
	Module   vrx.Module
	// Recovery is started in recovery mode. Nil leaves recovery idle.
	Recovery Recovery
	Version  string
	Logger   *slog.Logger
}

// Status is a point-in-time view of the device, published once per tick
type Status struct {
	State            binding.State
	RadioUp          bool
	Peer             identity.Address
	BootCount        uint8
	Channel          int // -1 until a channel command is applied
	HeadTracking     bool
	Recording        bool
	GotInitialPacket bool
	StatusRequests   int
	Uptime           time.Duration
	RestartPending   bool
	RestartAt        time.Time
	LastClockSync    time.Time
	Radio            msp.Snapshot
}

// Device is one boot of the backpack
type Device struct {
	cfg      *config.Config
	provider identity.Provider
	driver   radio.Driver
	module   vrx.Module
	recovery Recovery
	version  string
	logger   *slog.Logger

	store      *identity.Store
	machine    *binding.Machine
	mailbox    *dispatch.Mailbox
	dispatcher *dispatch.Dispatcher
	transport  *radio.Transport

	radioStarted    bool
	recoveryStarted bool
	bindRequest     dispatch.Slot[struct{}]

	statusDelay       time.Duration
	statusWindow      time.Duration
	statusInterval    time.Duration
	lastStatusRequest time.Time
	statusRequests    int

	channel       int
	headTracking  bool
	recording     bool
	lastClockSync time.Time

	status atomic.Pointer[Status]
}

// NewDevice checks opts and returns an unbooted device
func NewDevice(opts Options) (*Device, error) {
	if opts.Config == nil {
		return nil, errors.New("backpack: config is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("backpack: identity provider is required")
	}
	if opts.Driver == nil {
		return nil, errors.New("backpack: radio driver is required")
	}
	if opts.Module == nil {
		return nil, errors.New("backpack: video receiver module is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Device{
		cfg:            opts.Config,
		provider:       opts.Provider,
		driver:         opts.Driver,
		module:         opts.Module,
		recovery:       opts.Recovery,
		version:        opts.Version,
		logger:         logger,
		statusDelay:    opts.Config.StatusBootDelay(),
		statusWindow:   opts.Config.StatusWindow(),
		statusInterval: opts.Config.StatusInterval(),
		channel:        -1,
	}, nil
}

// Setup boots the device: loads the identity, runs the boot transitions
// and starts either the radio or the recovery service. A radio that fails
// to start returns an error wrapping ErrRestart.
func (d *Device) Setup(now time.Time) error {
	fixed, hasFixed, err := d.cfg.FixedAddress()
	if err != nil {
		return fmt.Errorf("setup: fixed address: %w", err)
	}

	store, err := identity.Open(d.provider, d.logger.With("component", "identity"))
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	d.store = store
	d.machine = binding.NewMachine(d.cfg.BindingMachine(), store, d.logger.With("component", "binding"))
	d.mailbox = &dispatch.Mailbox{}

	d.transport = radio.NewTransport(d.driver, d.machine, d.handlePacket, d.logger.With("component", "radio"))
	d.dispatcher = dispatch.New(dispatch.Options{
		State:   d.machine,
		Mailbox: d.mailbox,
		Module:  d.module,
		Replier: d.transport,
		Version: d.version,
		Stats:   d.transport.Statistics(),
		Logger:  d.logger.With("component", "dispatch"),
	})

	d.machine.Boot(now)
	d.lastStatusRequest = now

	peer := store.PairedAddress()
	if hasFixed {
		peer = fixed
	}
	d.transport.SetPeer(peer)

	if err := d.module.Initialize(); err != nil {
		return fmt.Errorf("setup: initialize module: %w", err)
	}

	if d.machine.State() == binding.StateRecovery {
		if d.recovery != nil {
			if err := d.recovery.Start(d.mailbox, store.Record()); err != nil {
				d.logger.Warn("recovery service failed to start", "error", err)
			} else {
				d.recoveryStarted = true
			}
		}
		d.logger.Info("booted into recovery mode")
		d.publish(now)
		return nil
	}

	if err := d.transport.Start(); err != nil {
		d.logger.Error("radio failed to start", "error", err)
		return fmt.Errorf("%w: %w", ErrRestart, err)
	}
	d.radioStarted = true

	d.logger.Info("backpack started",
		"state", d.machine.State().String(),
		"peer", d.transport.Peer().String(),
		"boot_count", store.BootCount(),
	)
	d.publish(now)
	return nil
}

func (d *Device) handlePacket(src identity.Address, p *msp.Packet) {
	d.dispatcher.Handle(src, p)
}

// Tick runs one control-loop iteration. It returns ErrRestart when a
// scheduled restart is due.
func (d *Device) Tick(now time.Time) error {
	if d.machine == nil {
		return ErrNotSetup
	}

	d.module.Poll(now)

	// A bind that arrived before the binding deadline is applied ahead of
	// the timeout check
	if addr, ok := d.mailbox.Bind.Take(); ok {
		if d.machine.CompleteBind(addr, now) {
			d.transport.SetPeer(addr)
		}
	}

	if d.machine.Tick(now) == binding.ActionRestart {
		d.publish(now)
		return ErrRestart
	}

	if d.machine.State() == binding.StateRecovery {
		if t, ok := d.mailbox.ClockSync.Take(); ok {
			d.module.SyncClock(t)
			d.lastClockSync = t
		}
		if _, ok := d.mailbox.Restart.Take(); ok {
			d.publish(now)
			return ErrRestart
		}
		d.publish(now)
		return nil
	}

	d.applyMailbox(now)

	if d.statusRequestDue(now) {
		d.sendStatusRequest(now)
	}

	d.publish(now)
	return nil
}

func (d *Device) applyMailbox(now time.Time) {
	if _, ok := d.bindRequest.Take(); ok {
		if err := d.machine.StartBinding(now); err != nil {
			d.logger.Warn("binding request refused", "error", err)
		}
	}

	if _, ok := d.mailbox.Recovery.Take(); ok {
		d.machine.RequestRecovery(now)
	}

	if index, ok := d.mailbox.Channel.Take(); ok {
		d.module.SendChannelIndex(index)
		d.channel = int(index)
	}

	if enabled, ok := d.mailbox.HeadTracking.Take(); ok {
		d.module.SetHeadTrackingEnabled(enabled)
		d.headTracking = enabled
	}

	if cmd, ok := d.mailbox.Recording.Take(); ok {
		d.module.SetRecordingState(cmd.Active, cmd.Delay)
		d.recording = cmd.Active
	}
}

// statusRequestDue reports whether the goggles should be asked for their
// channel. Requests are sent in [boot delay, boot delay + window) after
// boot and stop at the first packet from the peer.
func (d *Device) statusRequestDue(now time.Time) bool {
	if d.dispatcher.GotInitialPacket() || d.machine.Binding() {
		return false
	}
	uptime := d.machine.Uptime(now)
	if uptime < d.statusDelay || uptime >= d.statusDelay+d.statusWindow {
		return false
	}
	return now.Sub(d.lastStatusRequest) >= d.statusInterval
}

func (d *Device) sendStatusRequest(now time.Time) {
	d.lastStatusRequest = now
	d.statusRequests++
	if err := d.transport.SendToPeer(msp.NewStatusRequest()); err != nil {
		d.logger.Debug("status request failed", "error", err)
	}
}

func (d *Device) publish(now time.Time) {
	restartAt, pending := d.machine.RestartPending()
	s := &Status{
		State:            d.machine.State(),
		RadioUp:          d.radioStarted,
		Peer:             d.transport.Peer(),
		BootCount:        d.store.BootCount(),
		Channel:          d.channel,
		HeadTracking:     d.headTracking,
		Recording:        d.recording,
		GotInitialPacket: d.dispatcher.GotInitialPacket(),
		StatusRequests:   d.statusRequests,
		Uptime:           d.machine.Uptime(now),
		RestartPending:   pending,
		RestartAt:        restartAt,
		LastClockSync:    d.lastClockSync,
		Radio:            d.transport.Statistics().Snapshot(),
	}
	d.status.Store(s)
}

// Status returns the snapshot published by the last Setup or Tick. Safe
// from any goroutine.
func (d *Device) Status() Status {
	if s := d.status.Load(); s != nil {
		return *s
	}
	return Status{Channel: -1}
}

// Mailbox returns the pending-command mailbox, nil before Setup
func (d *Device) Mailbox() *dispatch.Mailbox {
	return d.mailbox
}

// StartBinding enters binding on request, for a manual pairing trigger.
// Call it from the control loop goroutine or before Run.
func (d *Device) StartBinding(now time.Time) error {
	if d.machine == nil {
		return ErrNotSetup
	}
	if err := d.machine.StartBinding(now); err != nil {
		return err
	}
	d.publish(now)
	return nil
}

// RequestBinding asks the loop to enter binding on its next tick. Safe from
// any goroutine.
func (d *Device) RequestBinding() {
	d.bindRequest.Post(struct{}{})
}

// Run calls Tick every tick until ctx is done or Tick fails
func (d *Device) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := d.Tick(now); err != nil {
				return err
			}
		}
	}
}

// Close releases the radio, the recovery service and the module. Each
// boot owns its driver, so the driver is closed even if it never started.
func (d *Device) Close() error {
	var errs []error
	if err := d.driver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close radio: %w", err))
	}
	d.radioStarted = false
	if d.recoveryStarted {
		if err := d.recovery.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop recovery: %w", err))
		}
		d.recoveryStarted = false
	}
	if c, ok := d.module.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close module: %w", err))
		}
	}
	return errors.Join(errs...)
}
