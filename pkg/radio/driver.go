// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package radio carries MSP frames between the backpack and its paired
// transmitter over a connectionless, best-effort radio link.
//
// A Driver moves raw frames. The Transport sits on top of it: it filters
// inbound frames by source address, feeds them to a persistent decoder and
// hands completed packets to the dispatcher.
package radio

import (
	"errors"

	"github.com/Thermoquad/backpack/pkg/identity"
)

// MaxFrameSize is the largest frame a radio driver accepts in one send
const MaxFrameSize = 250

// Errors
var (
	ErrRadioInit        = errors.New("radio init failed")
	ErrSendWhileBinding = errors.New("send refused while binding")
	ErrFrameTooLarge    = errors.New("frame exceeds radio MTU")
	ErrNotInitialized   = errors.New("radio not initialized")
	ErrClosed           = errors.New("radio closed")
)

// ReceiveHandler is invoked by a driver for every inbound frame. It may run
// on a driver goroutine concurrently with the control loop. The data slice
// is only valid for the duration of the call.
type ReceiveHandler func(src identity.Address, data []byte)

// Driver is the platform radio. Send must not wait for delivery.
type Driver interface {
	// Init brings the radio up using self as the local hardware address
	Init(self identity.Address) error
	// AddPeer registers a unicast destination
	AddPeer(peer identity.Address) error
	// Send transmits one frame to dst without acknowledgement
	Send(dst identity.Address, data []byte) error
	// SetReceiveHandler registers the inbound frame callback. Called before Init.
	SetReceiveHandler(h ReceiveHandler)
	// Close shuts the radio down
	Close() error
}

// Gate reports whether the device is pairing. While pairing the address
// filter is relaxed and outbound sends are refused.
type Gate interface {
	Binding() bool
}
