// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"sync"

	"github.com/Thermoquad/backpack/pkg/identity"
)

// Medium is an in-memory broadcast air shared by MediumDrivers.
// A frame sent to an address reaches every initialised driver using that
// address; a frame sent to identity.Broadcast reaches all others.
// Delivery happens synchronously on the sender's goroutine.
type Medium struct {
	mu      sync.Mutex
	drivers []*MediumDriver
	// Drop, if set, is asked for every delivery and discards the frame when it returns true
	Drop func(src, dst identity.Address, data []byte) bool
}

// NewMedium creates an empty medium
func NewMedium() *Medium {
	return &Medium{}
}

// NewDriver creates a driver attached to the medium
func (m *Medium) NewDriver() *MediumDriver {
	d := &MediumDriver{medium: m}
	m.mu.Lock()
	m.drivers = append(m.drivers, d)
	m.mu.Unlock()
	return d
}

func (m *Medium) deliver(from *MediumDriver, src, dst identity.Address, data []byte) {
	m.mu.Lock()
	targets := make([]*MediumDriver, 0, len(m.drivers))
	for _, d := range m.drivers {
		if d != from && d.accepts(dst) {
			targets = append(targets, d)
		}
	}
	drop := m.Drop
	m.mu.Unlock()

	for _, d := range targets {
		if drop != nil && drop(src, dst, data) {
			continue
		}
		d.receive(src, data)
	}
}

// MediumDriver is a Driver on a Medium
type MediumDriver struct {
	medium *Medium

	mu      sync.Mutex
	self    identity.Address
	up      bool
	closed  bool
	peers   []identity.Address
	handler ReceiveHandler
	sent    [][]byte

	// InitErr, if set, is returned by Init
	InitErr error
	// AddPeerErr, if set, is returned by AddPeer
	AddPeerErr error
}

// Init brings the driver onto the air with the given address
func (d *MediumDriver) Init(self identity.Address) error {
	if d.InitErr != nil {
		return d.InitErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.self = self
	d.up = true
	d.closed = false
	return nil
}

// AddPeer records a peer
func (d *MediumDriver) AddPeer(peer identity.Address) error {
	if d.AddPeerErr != nil {
		return d.AddPeerErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers = append(d.peers, peer)
	return nil
}

// Send puts one frame on the air
func (d *MediumDriver) Send(dst identity.Address, data []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if !d.up {
		d.mu.Unlock()
		return ErrNotInitialized
	}
	if len(data) > MaxFrameSize {
		d.mu.Unlock()
		return ErrFrameTooLarge
	}
	frame := append([]byte(nil), data...)
	d.sent = append(d.sent, frame)
	self := d.self
	d.mu.Unlock()

	d.medium.deliver(d, self, dst, frame)
	return nil
}

// SetReceiveHandler registers the inbound callback
func (d *MediumDriver) SetReceiveHandler(h ReceiveHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// Close takes the driver off the air
func (d *MediumDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.up = false
	return nil
}

// Address returns the address given to Init
func (d *MediumDriver) Address() identity.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.self
}

// Peers returns the registered peers
func (d *MediumDriver) Peers() []identity.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]identity.Address(nil), d.peers...)
}

// Sent returns copies of every frame sent by this driver
func (d *MediumDriver) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.sent))
	for i, f := range d.sent {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Inject delivers a frame to this driver as if received from src
func (d *MediumDriver) Inject(src identity.Address, data []byte) {
	d.receive(src, data)
}

func (d *MediumDriver) accepts(dst identity.Address) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.up && (dst == identity.Broadcast || dst == d.self)
}

func (d *MediumDriver) receive(src identity.Address, data []byte) {
	d.mu.Lock()
	h := d.handler
	d.mu.Unlock()
	if h != nil {
		h(src, append([]byte(nil), data...))
	}
}
