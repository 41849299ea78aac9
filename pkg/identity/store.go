// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package identity

import (
	"fmt"
	"log/slog"

	"github.com/fxamacker/cbor/v2"
)

// Record is the persisted identity
type Record struct {
	BootCount       uint8
	PairedAddress   Address
	StartInRecovery bool
}

// wireRecord is the CBOR layout: {1: boot count, 2: address, 3: recovery}
type wireRecord struct {
	BootCount       uint8  `cbor:"1,keyasint"`
	PairedAddress   []byte `cbor:"2,keyasint,omitempty"`
	StartInRecovery bool   `cbor:"3,keyasint"`
}

// EncodeRecord serializes a record to CBOR
func EncodeRecord(r Record) ([]byte, error) {
	w := wireRecord{
		BootCount:       r.BootCount,
		StartInRecovery: r.StartInRecovery,
	}
	if !r.PairedAddress.IsZero() {
		w.PairedAddress = r.PairedAddress[:]
	}
	data, err := cbor.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a CBOR record
func DecodeRecord(data []byte) (Record, error) {
	var w wireRecord
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}

	r := Record{
		BootCount:       w.BootCount,
		StartInRecovery: w.StartInRecovery,
	}
	switch len(w.PairedAddress) {
	case 0:
	case AddressSize:
		copy(r.PairedAddress[:], w.PairedAddress)
	default:
		return Record{}, fmt.Errorf("%w: stored address has %d bytes", ErrInvalidAddress, len(w.PairedAddress))
	}
	return r, nil
}

// Store holds the identity record in memory and commits it through a
// Provider. It is owned by the control loop and not safe for concurrent
// use; setters only mark the record dirty, Commit persists it.
type Store struct {
	provider Provider
	logger   *slog.Logger
	record   Record
	dirty    bool
}

// Open loads the record from provider. A missing record starts from zero
// values. A corrupt record is logged and replaced by zero values on the
// next commit.
func Open(provider Provider, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{provider: provider, logger: logger}

	data, err := provider.Load()
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if len(data) == 0 {
		logger.Debug("no stored identity, using defaults")
		return s, nil
	}

	record, err := DecodeRecord(data)
	if err != nil {
		logger.Warn("stored identity is corrupt, using defaults", "error", err)
		s.dirty = true
		return s, nil
	}
	s.record = record
	return s, nil
}

// Record returns a copy of the current record
func (s *Store) Record() Record {
	return s.record
}

// BootCount returns the boot counter
func (s *Store) BootCount() uint8 {
	return s.record.BootCount
}

// SetBootCount sets the boot counter
func (s *Store) SetBootCount(n uint8) {
	if s.record.BootCount != n {
		s.record.BootCount = n
		s.dirty = true
	}
}

// PairedAddress returns the paired transmitter address
func (s *Store) PairedAddress() Address {
	return s.record.PairedAddress
}

// SetPairedAddress sets the paired transmitter address
func (s *Store) SetPairedAddress(a Address) {
	if s.record.PairedAddress != a {
		s.record.PairedAddress = a
		s.dirty = true
	}
}

// StartInRecovery returns the start-in-recovery flag
func (s *Store) StartInRecovery() bool {
	return s.record.StartInRecovery
}

// SetStartInRecovery sets the start-in-recovery flag
func (s *Store) SetStartInRecovery(v bool) {
	if s.record.StartInRecovery != v {
		s.record.StartInRecovery = v
		s.dirty = true
	}
}

// Reset clears the record to zero values
func (s *Store) Reset() {
	s.record = Record{}
	s.dirty = true
}

// Dirty returns true if the record has uncommitted changes
func (s *Store) Dirty() bool {
	return s.dirty
}

// Commit writes the whole record if anything changed since the last commit
func (s *Store) Commit() error {
	if !s.dirty {
		return nil
	}

	data, err := EncodeRecord(s.record)
	if err != nil {
		return err
	}
	if err := s.provider.Save(data); err != nil {
		return fmt.Errorf("commit identity: %w", err)
	}

	s.dirty = false
	s.logger.Debug("identity committed",
		"boot_count", s.record.BootCount,
		"paired", s.record.PairedAddress.String(),
		"start_in_recovery", s.record.StartInRecovery)
	return nil
}
