// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/msp"
)

const defaultSerialReadTimeout = 300 * time.Millisecond

// maxBridgeFrame is the largest radio frame that fits in one RADIO_FRAME
// packet after the 6-byte peer prefix
const maxBridgeFrame = msp.MaxPayloadSize - identity.AddressSize

// SerialDriver talks to a USB radio bridge. Radio frames travel in both
// directions as RADIO_FRAME packets; Init sends SET_RADIO_ADDRESS.
type SerialDriver struct {
	port   io.ReadWriteCloser
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	handler ReceiveHandler
	up      bool
	started bool

	done      chan struct{}
	closeOnce sync.Once
}

// OpenSerialDriver opens a bridge on a serial port
func OpenSerialDriver(portName string, baudRate int, logger *slog.Logger) (*SerialDriver, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set serial read timeout: %w", err)
	}

	return NewSerialDriver(port, logger), nil
}

// NewSerialDriver wraps an open bridge connection
func NewSerialDriver(port io.ReadWriteCloser, logger *slog.Logger) *SerialDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SerialDriver{
		port:   port,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Init starts the read loop and configures the bridge address
func (s *SerialDriver) Init(self identity.Address) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.mu.Lock()
	start := !s.started
	s.started = true
	s.mu.Unlock()
	if start {
		go s.readLoop()
	}

	if err := s.write(msp.NewRadioAddress(self)); err != nil {
		return err
	}

	s.mu.Lock()
	s.up = true
	s.mu.Unlock()
	return nil
}

// AddPeer is a no-op; the bridge transmits to whatever address a frame names
func (s *SerialDriver) AddPeer(identity.Address) error {
	return nil
}

// Send forwards one frame to the bridge
func (s *SerialDriver) Send(dst identity.Address, data []byte) error {
	s.mu.Lock()
	up := s.up
	s.mu.Unlock()
	if !up {
		return ErrNotInitialized
	}
	if len(data) > maxBridgeFrame {
		return fmt.Errorf("%w: %d bytes (bridge max %d)", ErrFrameTooLarge, len(data), maxBridgeFrame)
	}
	return s.write(msp.NewRadioFrame(dst, data))
}

// SetReceiveHandler registers the inbound callback
func (s *SerialDriver) SetReceiveHandler(h ReceiveHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Close closes the port and stops the read loop
func (s *SerialDriver) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.up = false
		s.mu.Unlock()
		err = s.port.Close()
	})
	return err
}

func (s *SerialDriver) write(p *msp.Packet) error {
	frame, err := msp.Encode(p)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	written := 0
	for written < len(frame) {
		n, err := s.port.Write(frame[written:])
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		written += n
	}
	return nil
}

func (s *SerialDriver) readLoop() {
	decoder := msp.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := s.port.Read(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Warn("serial bridge read failed", "error", err)
			}
			return
		}
		// n == 0 is a read timeout
		if n == 0 {
			select {
			case <-s.done:
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
			peer, frame, ok := msp.ParseRadioFrame(p)
			if !ok {
				s.logger.Debug("ignored bridge packet", "packet", p.String())
				continue
			}

			s.mu.Lock()
			h := s.handler
			s.mu.Unlock()
			if h != nil {
				h(peer, frame)
			}
		}
	}
}
