// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/backpack/pkg/binding"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backpack.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
}

func TestDefault_BindingMachine(t *testing.T) {
	got := Default().BindingMachine()
	if got != binding.DefaultConfig() {
		t.Errorf("Expected %+v, got %+v", binding.DefaultConfig(), got)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Radio.Driver != DriverWebSocket {
		t.Errorf("Expected default driver, got %s", cfg.Radio.Driver)
	}
}

func TestLoad_OverridesKeepDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
radio:
  driver: serial
  port: /dev/ttyUSB0
binding:
  autobind: false
  timeout_ms: 60000
status_request:
  boot_delay_ms: 2000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Radio.Baud != 460800 {
		t.Errorf("Unset baud should keep default, got %d", cfg.Radio.Baud)
	}

	m := cfg.BindingMachine()
	if m.Autobind {
		t.Error("Expected autobind disabled")
	}
	if m.BindingTimeout != time.Minute {
		t.Errorf("Expected 1m binding timeout, got %v", m.BindingTimeout)
	}
	if m.Threshold != binding.DefaultThreshold {
		t.Errorf("Unset threshold should keep default, got %d", m.Threshold)
	}
	if cfg.StatusWindow() != 5*time.Second {
		t.Errorf("Expected 5s status window, got %v", cfg.StatusWindow())
	}
	if cfg.StatusBootDelay() != 2*time.Second {
		t.Errorf("Expected 2s boot delay, got %v", cfg.StatusBootDelay())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "radio: [", "failed to parse"},
		{"unknown driver", "radio:\n  driver: carrier-pigeon\n", "unknown driver"},
		{"serial without port", "radio:\n  driver: serial\n", "radio.port"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"zero threshold", "binding:\n  threshold: 0\n", "binding.threshold"},
		{"bad fixed address", "identity:\n  fixed_address: nope\n", "fixed_address"},
		{"zero interval", "status_request:\n  interval_ms: 0\n", "interval_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestFixedAddress(t *testing.T) {
	cfg := Default()
	if _, ok, _ := cfg.FixedAddress(); ok {
		t.Error("Default should have no fixed address")
	}

	cfg.Identity.FixedAddress = "AA:BB:CC:DD:EE:FF"
	a, ok, err := cfg.FixedAddress()
	if err != nil || !ok || a.String() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Unexpected fixed address %s ok=%v err=%v", a, ok, err)
	}
	if !cfg.BindingMachine().FixedAddress {
		t.Error("Fixed address should reach the binding config")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "backpack.yaml")
	cfg := Default()
	cfg.Radio.Driver = DriverMemory
	cfg.Binding.Threshold = 6

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Radio.Driver != DriverMemory || loaded.Binding.Threshold != 6 {
		t.Errorf("Round trip lost values: %+v", loaded)
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Loop.TickMs = 0
	if err := Save(filepath.Join(t.TempDir(), "x.yaml"), cfg); err == nil {
		t.Error("Expected validation error")
	}
}
