// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mspvrx drives goggles that accept MSP over a UART. Commands are
// written as MSP frames; responses are decoded on a reader goroutine and
// drained by Poll.
package mspvrx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/Thermoquad/backpack/pkg/msp"
	"github.com/Thermoquad/backpack/pkg/vrx"
)

const (
	defaultReadTimeout = 100 * time.Millisecond
	responseQueue      = 16
)

// Module forwards commands to goggles over a serial port
type Module struct {
	portName string
	baudRate int
	logger   *slog.Logger

	port    io.ReadWriteCloser
	writeMu sync.Mutex

	responses chan *msp.Packet
	done      chan struct{}
	closeOnce sync.Once

	mu           sync.Mutex
	channelIndex int
	recording    bool
	writeErrors  int
}

var _ vrx.Module = (*Module)(nil)

// New creates a module that opens portName at baudRate on Initialize
func New(portName string, baudRate int, logger *slog.Logger) *Module {
	m := newModule(logger)
	m.portName = portName
	m.baudRate = baudRate
	return m
}

// NewWithPort creates a module on an already open connection
func NewWithPort(port io.ReadWriteCloser, logger *slog.Logger) *Module {
	m := newModule(logger)
	m.port = port
	return m
}

func newModule(logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{
		logger:       logger.With("module", "msp"),
		responses:    make(chan *msp.Packet, responseQueue),
		done:         make(chan struct{}),
		channelIndex: -1,
	}
}

// Initialize opens the port if needed and starts the reader
func (m *Module) Initialize() error {
	if m.port == nil {
		if m.portName == "" {
			return errors.New("mspvrx: no serial port configured")
		}
		port, err := serial.Open(m.portName, &serial.Mode{
			BaudRate: m.baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return fmt.Errorf("failed to open serial port %s: %w", m.portName, err)
		}
		if err := port.SetReadTimeout(defaultReadTimeout); err != nil {
			_ = port.Close()
			return fmt.Errorf("set serial read timeout: %w", err)
		}
		m.port = port
	}

	go m.readLoop()
	m.logger.Info("video receiver ready", "port", m.portName, "baud", m.baudRate)
	return nil
}

// Close stops the reader and closes the port
func (m *Module) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		if m.port != nil {
			err = m.port.Close()
		}
	})
	return err
}

// Poll drains responses from the goggles without blocking
func (m *Module) Poll(time.Time) {
	for {
		select {
		case p := <-m.responses:
			m.handleResponse(p)
		default:
			return
		}
	}
}

func (m *Module) handleResponse(p *msp.Packet) {
	switch p.Function() {
	case msp.FuncGetChannelIndex:
		if p.PayloadSize() >= 1 {
			m.mu.Lock()
			m.channelIndex = int(p.Payload()[0])
			m.mu.Unlock()
		}
	case msp.FuncGetRecordingState:
		if p.PayloadSize() >= 1 {
			m.mu.Lock()
			m.recording = p.Payload()[0] != 0
			m.mu.Unlock()
		}
	}
	m.logger.Debug("goggles response", "packet", p.String())
}

// ChannelIndex returns the last channel index reported or sent, -1 if unknown
func (m *Module) ChannelIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channelIndex
}

// Recording returns the last recording state reported or sent
func (m *Module) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// WriteErrors returns the number of failed writes
func (m *Module) WriteErrors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeErrors
}

// SetRecordingState sends SET_RECORDING_STATE
func (m *Module) SetRecordingState(active bool, delay uint16) {
	m.mu.Lock()
	m.recording = active
	m.mu.Unlock()
	m.send(msp.NewRecordingState(active, delay))
}

// SetOnScreenDisplay forwards the OSD packet unchanged
func (m *Module) SetOnScreenDisplay(p *msp.Packet) {
	m.send(p)
}

// SendBatteryTelemetry forwards the CRSF frame
func (m *Module) SendBatteryTelemetry(payload []byte) {
	m.send(msp.NewCommand(msp.FuncCRSFTelemetry, payload))
}

// SendLinkTelemetry forwards the CRSF frame
func (m *Module) SendLinkTelemetry(payload []byte) {
	m.send(msp.NewCommand(msp.FuncCRSFTelemetry, payload))
}

// SendChannelIndex sends SET_CHANNEL_INDEX
func (m *Module) SendChannelIndex(index uint8) {
	m.mu.Lock()
	m.channelIndex = int(index)
	m.mu.Unlock()
	m.send(msp.NewCommand(msp.FuncSetChannelIndex, []byte{index}))
}

// SetHeadTrackingEnabled sends SET_HEAD_TRACKING
func (m *Module) SetHeadTrackingEnabled(enabled bool) {
	m.send(msp.NewHeadTracking(enabled))
}

// SyncClock sends SET_RTC
func (m *Module) SyncClock(t time.Time) {
	m.send(msp.NewClockSync(t))
}

func (m *Module) send(p *msp.Packet) {
	if m.port == nil {
		m.logger.Debug("dropped command before initialize", "packet", p.String())
		return
	}

	frame, err := msp.Encode(p)
	if err == nil {
		m.writeMu.Lock()
		err = writeFull(m.port, frame)
		m.writeMu.Unlock()
	}
	if err != nil {
		m.mu.Lock()
		m.writeErrors++
		m.mu.Unlock()
		m.logger.Warn("goggles write failed", "packet", p.String(), "error", err)
	}
}

func writeFull(w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

func (m *Module) readLoop() {
	decoder := msp.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := m.port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			select {
			case <-m.done:
				return
			default:
				continue
			}
		}

		for _, b := range buf[:n] {
			p := decoder.Feed(b)
			if p == nil {
				continue
			}
			select {
			case m.responses <- p:
			default:
				m.logger.Debug("dropped goggles response, queue full", "packet", p.String())
			}
		}
	}
}
