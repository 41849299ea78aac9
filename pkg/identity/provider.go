// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Provider stores the encoded identity record as one opaque blob.
// Load returns (nil, nil) when nothing has been stored yet. Save must
// replace the previous blob atomically.
type Provider interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// MemoryProvider keeps the record in memory. It survives simulated
// restarts of a Device as long as the same provider is reused.
type MemoryProvider struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemoryProvider creates an empty in-memory provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

// Load returns a copy of the stored blob
func (m *MemoryProvider) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

// Save replaces the stored blob
func (m *MemoryProvider) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Saves returns how many times Save has been called
func (m *MemoryProvider) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FileProvider stores the record in a file, written via a temp file and
// rename so a reader never sees a partial record.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider backed by path
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Path returns the backing file path
func (f *FileProvider) Path() string {
	return f.path
}

// Load reads the record file. A missing file is not an error.
func (f *FileProvider) Load() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	return data, nil
}

// Save writes the record file
func (f *FileProvider) Save(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp identity: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename temp identity: %w", err)
	}

	return nil
}
