// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/msp"
)

// PacketHandler receives completed packets together with the source address
// of the frame that completed them
type PacketHandler func(src identity.Address, p *msp.Packet)

// Transport filters, decodes and sends MSP frames over a Driver.
//
// Receive runs on the driver's context. It reads the peer address and the
// gate atomically and is the only user of the decoder. SetPeer is called
// from the control loop only.
type Transport struct {
	driver  Driver
	gate    Gate
	handler PacketHandler
	logger  *slog.Logger
	stats   *msp.Statistics
	decoder *msp.Decoder
	peer    atomic.Pointer[identity.Address]
}

// NewTransport creates a transport. A nil gate never reports binding.
func NewTransport(driver Driver, gate Gate, handler PacketHandler, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{
		driver:  driver,
		gate:    gate,
		handler: handler,
		logger:  logger,
		stats:   msp.NewStatistics(),
		decoder: msp.NewDecoder(),
	}
	t.peer.Store(&identity.Address{})
	return t
}

// Statistics returns the transport's frame counters
func (t *Transport) Statistics() *msp.Statistics {
	return t.stats
}

// SetPeer sets the paired address used for filtering and as send target.
// The multicast bit is cleared, matching the address the peer transmits from.
func (t *Transport) SetPeer(a identity.Address) {
	u := a.Unicast()
	t.peer.Store(&u)
}

// Peer returns the current paired address
func (t *Transport) Peer() identity.Address {
	return *t.peer.Load()
}

// Start registers the receive path and initialises the driver, using the
// peer address as the local address as well. An Init failure is fatal and
// wrapped in ErrRadioInit; an AddPeer failure is only logged.
func (t *Transport) Start() error {
	peer := t.Peer()

	t.driver.SetReceiveHandler(t.Receive)
	if err := t.driver.Init(peer); err != nil {
		return fmt.Errorf("%w: %v", ErrRadioInit, err)
	}
	if err := t.driver.AddPeer(peer); err != nil {
		t.logger.Warn("failed to add radio peer", "peer", peer.String(), "error", err)
	}

	t.logger.Info("radio started", "address", peer.String())
	return nil
}

// Close shuts the driver down
func (t *Transport) Close() error {
	return t.driver.Close()
}

func (t *Transport) binding() bool {
	return t.gate != nil && t.gate.Binding()
}

// Receive is the driver callback. Frames from anyone but the peer are
// dropped before reaching the decoder unless the device is binding.
func (t *Transport) Receive(src identity.Address, data []byte) {
	t.stats.RecordFrame()

	if !t.binding() {
		if peer := t.Peer(); src != peer {
			t.stats.RecordFiltered()
			t.logger.Debug("dropped frame from unpaired address", "src", src.String(), "peer", peer.String())
			return
		}
	}

	for _, b := range data {
		p, err := t.decoder.DecodeByte(b)
		if err != nil {
			t.stats.RecordDecodeError(err)
			t.logger.Debug("discarded frame", "src", src.String(), "error", err)
			continue
		}
		if p != nil {
			t.stats.RecordPacket()
			if t.handler != nil {
				t.handler(src, p)
			}
		}
	}
}

// Send encodes p and hands it to the driver. It never retries and never
// waits for delivery.
func (t *Transport) Send(dst identity.Address, p *msp.Packet) error {
	if t.binding() {
		return ErrSendWhileBinding
	}

	frame, err := msp.Encode(p)
	if err != nil {
		t.stats.RecordSend(err)
		return err
	}
	if len(frame) > MaxFrameSize {
		err := fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(frame), MaxFrameSize)
		t.stats.RecordSend(err)
		return err
	}

	err = t.driver.Send(dst, frame)
	t.stats.RecordSend(err)
	if err != nil {
		t.logger.Debug("radio send failed", "dst", dst.String(), "function", msp.FormatFunction(p.Function()), "error", err)
	}
	return err
}

// SendToPeer sends p to the paired address
func (t *Transport) SendToPeer(p *msp.Packet) error {
	return t.Send(t.Peer(), p)
}
