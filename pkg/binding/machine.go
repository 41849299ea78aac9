// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package binding implements the backpack's connection state machine:
// boot-loop pairing detection, the binding window, recovery fallback and
// restart scheduling.
//
// Pairing needs no button. Power-cycling the backpack Threshold times,
// each within GraceWindow of the previous boot, enters Binding. A boot that
// survives past GraceWindow clears the counter.
package binding

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/backpack/pkg/identity"
)

// State is the connection state
type State int32

// Connection states
const (
	StateStarting State = iota
	StateBinding
	StateRunning
	StateRecovery
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateBinding:
		return "binding"
	case StateRunning:
		return "running"
	case StateRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Action tells the control loop what to do after a Tick
type Action int

// Tick actions
const (
	ActionNone Action = iota
	ActionRestart
)

// Default timings
const (
	DefaultThreshold      = 4
	DefaultGraceWindow    = 5 * time.Second
	DefaultBindingTimeout = 120 * time.Second
	DefaultRestartDelay   = 200 * time.Millisecond
)

// ErrFixedAddress is returned when binding is requested on a device with a
// compiled-in address
var ErrFixedAddress = errors.New("binding disabled: fixed address configured")

// Config holds the state machine parameters
type Config struct {
	// Threshold is the number of rapid boots that enters binding
	Threshold uint8
	// GraceWindow is how long a boot must survive to clear the boot counter
	GraceWindow time.Duration
	// BindingTimeout bounds how long the device stays in binding
	BindingTimeout time.Duration
	// RestartDelay separates a completed bind from the restart
	RestartDelay time.Duration
	// Autobind enables boot counting. Without it an expired binding window
	// returns to running instead of recovery.
	Autobind bool
	// FixedAddress means the paired address is configured, not learned.
	// A boot loop then requests recovery instead of binding.
	FixedAddress bool
}

// DefaultConfig returns the standard configuration
func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		GraceWindow:    DefaultGraceWindow,
		BindingTimeout: DefaultBindingTimeout,
		RestartDelay:   DefaultRestartDelay,
		Autobind:       true,
	}
}

// Machine is the connection state machine.
//
// State is stored atomically so the radio receive path can read it through
// Binding. Every other field, and every transition, belongs to the control
// loop.
type Machine struct {
	cfg    Config
	store  *identity.Store
	logger *slog.Logger

	state atomic.Int32

	bootTime       time.Time
	bindingStarted time.Time
	restartAt      time.Time
	restartPending bool
}

// NewMachine creates a machine in StateStarting
func NewMachine(cfg Config, store *identity.Store, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Machine{cfg: cfg, store: store, logger: logger}
	m.state.Store(int32(StateStarting))
	return m
}

// Config returns the machine configuration
func (m *Machine) Config() Config {
	return m.cfg
}

// State returns the current state
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Binding reports whether the device is pairing. Safe from any goroutine.
func (m *Machine) Binding() bool {
	return m.State() == StateBinding
}

func (m *Machine) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.Info("connection state changed", "from", old.String(), "to", s.String())
	}
}

func (m *Machine) commit(reason string) {
	if err := m.store.Commit(); err != nil {
		m.logger.Warn("failed to persist identity", "reason", reason, "error", err)
	}
}

// Boot runs the startup transitions. It consumes the start-in-recovery
// flag, counts the boot and settles on Binding, Running or Recovery.
func (m *Machine) Boot(now time.Time) {
	m.bootTime = now

	if m.store.StartInRecovery() {
		m.store.SetStartInRecovery(false)
		m.commit("recovery flag consumed")
		m.setState(StateRecovery)
		return
	}

	if m.cfg.Autobind {
		m.countBoot(now)
	}

	if m.State() == StateStarting {
		m.setState(StateRunning)
	}
}

func (m *Machine) countBoot(now time.Time) {
	count := m.store.BootCount() + 1
	m.logger.Debug("boot counted", "boot_count", count, "threshold", m.cfg.Threshold)

	if count < m.cfg.Threshold {
		m.store.SetBootCount(count)
		m.commit("boot counted")
		return
	}

	m.store.SetBootCount(0)
	m.commit("boot loop detected")

	if m.cfg.FixedAddress {
		m.logger.Info("boot loop detected with fixed address, entering recovery")
		m.RequestRecovery(now)
		return
	}

	m.logger.Info("boot loop detected, entering binding")
	m.bindingStarted = now
	m.setState(StateBinding)
}

// StartBinding enters binding outside the boot-loop path, for a manual
// pairing trigger
func (m *Machine) StartBinding(now time.Time) error {
	if m.cfg.FixedAddress {
		return ErrFixedAddress
	}
	m.store.SetBootCount(0)
	m.commit("binding started")
	m.bindingStarted = now
	m.setState(StateBinding)
	return nil
}

// CompleteBind stores addr as the paired address, returns to Running and
// schedules a restart after RestartDelay. A recovery fallback already
// scheduled by the binding timeout is cancelled. It returns false outside
// Binding.
func (m *Machine) CompleteBind(addr identity.Address, now time.Time) bool {
	if m.State() != StateBinding {
		return false
	}

	m.store.SetPairedAddress(addr)
	m.store.SetBootCount(0)
	m.store.SetStartInRecovery(false)
	m.commit("bind completed")

	m.setState(StateRunning)
	m.scheduleRestart(now.Add(m.cfg.RestartDelay))
	m.logger.Info("bind completed", "address", addr.String(), "restart_at", m.restartAt)
	return true
}

// RequestRecovery persists the start-in-recovery flag and schedules an
// immediate restart
func (m *Machine) RequestRecovery(now time.Time) {
	m.store.SetStartInRecovery(true)
	m.store.SetBootCount(0)
	m.commit("recovery requested")
	m.scheduleRestart(now)
	m.logger.Info("restarting into recovery mode")
}

func (m *Machine) scheduleRestart(at time.Time) {
	m.restartAt = at
	m.restartPending = true
}

// RestartPending reports whether a restart has been scheduled, and when
func (m *Machine) RestartPending() (time.Time, bool) {
	return m.restartAt, m.restartPending
}

// Uptime returns the time since Boot
func (m *Machine) Uptime(now time.Time) time.Duration {
	return now.Sub(m.bootTime)
}

// Tick checks the deadlines. It is called once per control-loop iteration.
func (m *Machine) Tick(now time.Time) Action {
	if m.restartPending && !now.Before(m.restartAt) {
		return ActionRestart
	}

	if m.State() == StateRecovery {
		return ActionNone
	}

	if m.Binding() && now.Sub(m.bindingStarted) > m.cfg.BindingTimeout {
		m.logger.Info("binding expired")
		if m.cfg.Autobind {
			m.RequestRecovery(now)
			return ActionNone
		}
		m.setState(StateRunning)
	}

	if m.cfg.Autobind && m.Uptime(now) > m.cfg.GraceWindow && m.store.BootCount() > 0 {
		m.logger.Debug("boot survived grace window, clearing boot counter")
		m.store.SetBootCount(0)
		m.commit("grace window elapsed")
	}

	return ActionNone
}
