// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package identity persists the backpack's pairing identity: the boot
// counter, the paired transmitter address and the start-in-recovery flag.
//
// The three values form one record that is always committed together
// through a Provider, so a power cut never leaves a half-written pairing.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressSize is the length of a radio hardware address
const AddressSize = 6

// ErrInvalidAddress is returned when an address string cannot be parsed
var ErrInvalidAddress = errors.New("invalid address")

// Address is a 6-byte radio hardware address
type Address [AddressSize]byte

// Broadcast is the all-ones broadcast address
var Broadcast = Address{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// ParseAddress parses "AA:BB:CC:DD:EE:FF". Dashes and bare hex are accepted.
func ParseAddress(s string) (Address, error) {
	var a Address

	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != AddressSize*2 {
		return a, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := hex.Decode(a[:], []byte(clean)); err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return a, nil
}

// String formats the address as colon-separated upper-case hex
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Unicast returns the address with the multicast bit of the first octet
// cleared. A radio refuses a multicast address as its own.
func (a Address) Unicast() Address {
	a[0] &^= 0x01
	return a
}

// IsZero returns true if no address has been set
func (a Address) IsZero() bool {
	return a == Address{}
}
