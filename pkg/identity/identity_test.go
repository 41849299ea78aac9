// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package identity

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================
// Address Tests
// ============================================================

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected Address
		wantErr  bool
	}{
		{"AA:BB:CC:DD:EE:FF", Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, false},
		{"aa-bb-cc-dd-ee-ff", Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, false},
		{"010203040506", Address{1, 2, 3, 4, 5, 6}, false},
		{"AA:BB:CC:DD:EE", Address{}, true},
		{"GG:BB:CC:DD:EE:FF", Address{}, true},
		{"", Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("Expected ErrInvalidAddress, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestAddress_String(t *testing.T) {
	a := Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if a.String() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Unexpected string: %s", a)
	}
}

func TestAddress_Unicast(t *testing.T) {
	a := Address{0xAB, 0x01, 0x02, 0x03, 0x04, 0x05}
	u := a.Unicast()
	if u[0] != 0xAA {
		t.Errorf("Expected first octet 0xAA, got 0x%02X", u[0])
	}
	if a[0] != 0xAB {
		t.Error("Unicast should not modify the receiver")
	}
	if u.Unicast() != u {
		t.Error("Unicast should be idempotent")
	}
}

// ============================================================
// Record Encoding Tests
// ============================================================

func TestRecord_CBORLayout(t *testing.T) {
	data, err := EncodeRecord(Record{
		BootCount:       3,
		PairedAddress:   Address{1, 2, 3, 4, 5, 6},
		StartInRecovery: true,
	})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	var m map[int]interface{}
	if err := cbor.Unmarshal(data, &m); err != nil {
		t.Fatalf("Record is not a CBOR map: %v", err)
	}
	if m[1] != uint64(3) {
		t.Errorf("Key 1: expected boot count 3, got %v", m[1])
	}
	if b, ok := m[2].([]byte); !ok || len(b) != AddressSize {
		t.Errorf("Key 2: expected 6-byte string, got %T %v", m[2], m[2])
	}
	if m[3] != true {
		t.Errorf("Key 3: expected true, got %v", m[3])
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	records := []Record{
		{},
		{BootCount: 255},
		{PairedAddress: Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}},
		{BootCount: 2, PairedAddress: Address{1, 2, 3, 4, 5, 6}, StartInRecovery: true},
	}
	for _, r := range records {
		data, err := EncodeRecord(r)
		if err != nil {
			t.Fatalf("Encode error: %v", err)
		}
		got, err := DecodeRecord(data)
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if got != r {
			t.Errorf("Round trip: expected %+v, got %+v", r, got)
		}
	}
}

func TestDecodeRecord_BadAddress(t *testing.T) {
	data, _ := cbor.Marshal(map[int]interface{}{2: []byte{1, 2, 3}})
	if _, err := DecodeRecord(data); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
}

// ============================================================
// Store Tests
// ============================================================

func TestStore_DefaultsWhenEmpty(t *testing.T) {
	s, err := Open(NewMemoryProvider(), discardLogger())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if s.BootCount() != 0 || !s.PairedAddress().IsZero() || s.StartInRecovery() {
		t.Errorf("Expected zero record, got %+v", s.Record())
	}
}

func TestStore_CommitPersistsAllFields(t *testing.T) {
	p := NewMemoryProvider()
	s, _ := Open(p, discardLogger())

	s.SetBootCount(2)
	s.SetPairedAddress(Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	s.SetStartInRecovery(true)
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if p.Saves() != 1 {
		t.Errorf("Expected one save for three changes, got %d", p.Saves())
	}

	reopened, err := Open(p, discardLogger())
	if err != nil {
		t.Fatalf("Reopen error: %v", err)
	}
	if reopened.Record() != s.Record() {
		t.Errorf("Expected %+v after reopen, got %+v", s.Record(), reopened.Record())
	}
}

func TestStore_CommitSkipsWhenClean(t *testing.T) {
	p := NewMemoryProvider()
	s, _ := Open(p, discardLogger())

	s.SetBootCount(0)
	if s.Dirty() {
		t.Error("Setting an unchanged value should not mark the store dirty")
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if p.Saves() != 0 {
		t.Errorf("Expected no save, got %d", p.Saves())
	}
}

func TestStore_CorruptRecord(t *testing.T) {
	p := NewMemoryProvider()
	p.Save([]byte{0xFF, 0x00, 0x13})

	s, err := Open(p, discardLogger())
	if err != nil {
		t.Fatalf("Open should tolerate corrupt records: %v", err)
	}
	if !s.Dirty() {
		t.Error("Corrupt record should be rewritten on next commit")
	}
	if s.BootCount() != 0 {
		t.Errorf("Expected defaults, got %+v", s.Record())
	}
}

type failingProvider struct{}

func (failingProvider) Load() ([]byte, error) { return nil, errors.New("flash read failed") }
func (failingProvider) Save([]byte) error     { return errors.New("flash write failed") }

func TestStore_ProviderErrors(t *testing.T) {
	if _, err := Open(failingProvider{}, discardLogger()); err == nil {
		t.Error("Expected load error")
	}

	s := &Store{provider: failingProvider{}, logger: discardLogger()}
	s.SetBootCount(1)
	if err := s.Commit(); err == nil {
		t.Error("Expected commit error")
	}
	if !s.Dirty() {
		t.Error("Failed commit should leave the store dirty")
	}
}

func TestStore_Reset(t *testing.T) {
	p := NewMemoryProvider()
	s, _ := Open(p, discardLogger())
	s.SetPairedAddress(Address{1, 2, 3, 4, 5, 6})
	s.Commit()

	s.Reset()
	s.Commit()

	reopened, _ := Open(p, discardLogger())
	if !reopened.PairedAddress().IsZero() {
		t.Errorf("Expected cleared address, got %s", reopened.PairedAddress())
	}
}

// ============================================================
// FileProvider Tests
// ============================================================

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "identity.cbor")
	p := NewFileProvider(path)

	data, err := p.Load()
	if err != nil || data != nil {
		t.Fatalf("Missing file should load as nil, got %v, %v", data, err)
	}

	s, _ := Open(p, discardLogger())
	s.SetPairedAddress(Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file should be renamed away")
	}

	reopened, err := Open(NewFileProvider(path), discardLogger())
	if err != nil {
		t.Fatalf("Reopen error: %v", err)
	}
	if reopened.PairedAddress().String() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Unexpected address after reopen: %s", reopened.PairedAddress())
	}
}
