// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the backpack YAML configuration.
//
// Durations are integer milliseconds in fields ending in _ms. Missing
// fields keep their defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/backpack/pkg/binding"
	"github.com/Thermoquad/backpack/pkg/identity"
)

// Radio drivers
const (
	DriverMemory    = "memory"
	DriverWebSocket = "websocket"
	DriverSerial    = "serial"
)

// Config is the complete backpack configuration
type Config struct {
	Logging       LoggingConfig       `yaml:"logging"`
	Identity      IdentityConfig      `yaml:"identity"`
	Radio         RadioConfig         `yaml:"radio"`
	Binding       BindingConfig       `yaml:"binding"`
	StatusRequest StatusRequestConfig `yaml:"status_request"`
	Module        ModuleConfig        `yaml:"module"`
	Recovery      RecoveryConfig      `yaml:"recovery"`
	Loop          LoopConfig          `yaml:"loop"`
}

// LoggingConfig selects log level and destination
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	File   string `yaml:"file"`   // optional log file, appended
}

// IdentityConfig locates the persisted identity record
type IdentityConfig struct {
	Path         string `yaml:"path"`          // empty keeps the record in memory
	FixedAddress string `yaml:"fixed_address"` // AA:BB:CC:DD:EE:FF, disables binding
}

// RadioConfig selects and configures the radio driver
type RadioConfig struct {
	Driver        string `yaml:"driver"` // memory, websocket, serial
	URL           string `yaml:"url"`
	Username      string `yaml:"username"`
	SkipSSLVerify bool   `yaml:"skip_ssl_verify"`
	Port          string `yaml:"port"`
	Baud          int    `yaml:"baud"`
}

// BindingConfig holds the pairing parameters
type BindingConfig struct {
	Autobind       bool `yaml:"autobind"`
	Threshold      int  `yaml:"threshold"`
	GraceWindowMs  int  `yaml:"grace_window_ms"`
	TimeoutMs      int  `yaml:"timeout_ms"`
	RestartDelayMs int  `yaml:"restart_delay_ms"`
}

// StatusRequestConfig controls the post-boot channel resync
type StatusRequestConfig struct {
	WindowMs    int `yaml:"window_ms"`
	IntervalMs  int `yaml:"interval_ms"`
	BootDelayMs int `yaml:"boot_delay_ms"` // wait for slow-booting goggles before the first request
}

// ModuleConfig configures the video receiver driver
type ModuleConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// RecoveryConfig configures the recovery-mode endpoint
type RecoveryConfig struct {
	Listen string `yaml:"listen"`
}

// LoopConfig controls the control loop
type LoopConfig struct {
	TickMs int `yaml:"tick_ms"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Identity: IdentityConfig{
			Path: "backpack-identity.cbor",
		},
		Radio: RadioConfig{
			Driver: DriverWebSocket,
			URL:    "ws://localhost:8080/air",
			Baud:   460800,
		},
		Binding: BindingConfig{
			Autobind:       true,
			Threshold:      binding.DefaultThreshold,
			GraceWindowMs:  int(binding.DefaultGraceWindow / time.Millisecond),
			TimeoutMs:      int(binding.DefaultBindingTimeout / time.Millisecond),
			RestartDelayMs: int(binding.DefaultRestartDelay / time.Millisecond),
		},
		StatusRequest: StatusRequestConfig{
			WindowMs:   5000,
			IntervalMs: 1000,
		},
		Module: ModuleConfig{
			Baud: 115200,
		},
		Recovery: RecoveryConfig{
			Listen: "127.0.0.1:8090",
		},
		Loop: LoopConfig{
			TickMs: 10,
		},
	}
}

// Load reads and parses a YAML configuration file over the defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes cfg as YAML via a temp file and rename
func Save(path string, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}

// FixedAddress returns the configured fixed address, if any
func (c *Config) FixedAddress() (identity.Address, bool, error) {
	if c.Identity.FixedAddress == "" {
		return identity.Address{}, false, nil
	}
	a, err := identity.ParseAddress(c.Identity.FixedAddress)
	if err != nil {
		return identity.Address{}, false, err
	}
	return a, true, nil
}

// BindingMachine returns the binding state machine configuration
func (c *Config) BindingMachine() binding.Config {
	return binding.Config{
		Threshold:      uint8(c.Binding.Threshold),
		GraceWindow:    ms(c.Binding.GraceWindowMs),
		BindingTimeout: ms(c.Binding.TimeoutMs),
		RestartDelay:   ms(c.Binding.RestartDelayMs),
		Autobind:       c.Binding.Autobind,
		FixedAddress:   c.Identity.FixedAddress != "",
	}
}

// StatusWindow returns how long status requests are sent once the boot
// delay has passed
func (c *Config) StatusWindow() time.Duration {
	return ms(c.StatusRequest.WindowMs)
}

// StatusBootDelay returns the time after boot before the first status request
func (c *Config) StatusBootDelay() time.Duration {
	return ms(c.StatusRequest.BootDelayMs)
}

// StatusInterval returns the spacing between status requests
func (c *Config) StatusInterval() time.Duration {
	return ms(c.StatusRequest.IntervalMs)
}

// Tick returns the control loop period
func (c *Config) Tick() time.Duration {
	return ms(c.Loop.TickMs)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
