// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/backpack/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw      string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{" INFO ", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q): unexpected error %v", tt.raw, err)
		}
		if got != tt.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tt.raw, tt.expected, got)
		}
	}
}

func TestManager_LevelAndComponent(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&buf)
	if err := m.Configure(config.LoggingConfig{Level: "warn"}, false); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	log := m.Logger("radio")
	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "component=radio") {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestManager_JSON(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(&buf)
	if err := m.Configure(config.LoggingConfig{Format: "json"}, false); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	m.Logger("binding").Info("state")
	if !strings.Contains(buf.String(), `"component":"binding"`) {
		t.Errorf("Expected JSON output, got %s", buf.String())
	}
}

func TestManager_QuietWritesFileOnly(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "backpack.log")
	m := NewManager(&buf)
	if err := m.Configure(config.LoggingConfig{File: path}, true); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	m.Logger("test").Info("to file")
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("Quiet mode wrote to stdout: %s", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("Log file missing message: %s", data)
	}
}

func TestManager_BadLevel(t *testing.T) {
	m := NewManager(&bytes.Buffer{})
	if err := m.Configure(config.LoggingConfig{Level: "loud"}, false); err == nil {
		t.Error("Expected error for unsupported level")
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken") }

func TestFanoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := newFanoutWriter(failWriter{}, &buf, nil)
	if n, err := w.Write([]byte("abc")); err != nil || n != 3 {
		t.Errorf("Expected success when one writer works, got n=%d err=%v", n, err)
	}

	w = newFanoutWriter(failWriter{})
	if _, err := w.Write([]byte("abc")); err == nil {
		t.Error("Expected error when every writer fails")
	}
}
