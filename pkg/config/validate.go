// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the backpack cannot run with
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("logging.level: unsupported level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json", "":
	default:
		return fmt.Errorf("logging.format: unsupported format %q", cfg.Logging.Format)
	}

	if _, _, err := cfg.FixedAddress(); err != nil {
		return fmt.Errorf("identity.fixed_address: %w", err)
	}

	switch cfg.Radio.Driver {
	case DriverMemory:
	case DriverWebSocket:
		if strings.TrimSpace(cfg.Radio.URL) == "" {
			return errors.New("radio.url is required for the websocket driver")
		}
	case DriverSerial:
		if strings.TrimSpace(cfg.Radio.Port) == "" {
			return errors.New("radio.port is required for the serial driver")
		}
		if cfg.Radio.Baud <= 0 {
			return errors.New("radio.baud must be positive")
		}
	default:
		return fmt.Errorf("radio.driver: unknown driver %q", cfg.Radio.Driver)
	}

	b := cfg.Binding
	if b.Threshold < 1 || b.Threshold > 255 {
		return fmt.Errorf("binding.threshold must be between 1 and 255, got %d", b.Threshold)
	}
	if b.GraceWindowMs <= 0 {
		return errors.New("binding.grace_window_ms must be positive")
	}
	if b.TimeoutMs <= 0 {
		return errors.New("binding.timeout_ms must be positive")
	}
	if b.RestartDelayMs < 0 {
		return errors.New("binding.restart_delay_ms must not be negative")
	}

	s := cfg.StatusRequest
	if s.WindowMs < 0 || s.BootDelayMs < 0 {
		return errors.New("status_request window and boot delay must not be negative")
	}
	if s.IntervalMs <= 0 {
		return errors.New("status_request.interval_ms must be positive")
	}

	if cfg.Module.Port != "" && cfg.Module.Baud <= 0 {
		return errors.New("module.baud must be positive")
	}
	if strings.TrimSpace(cfg.Recovery.Listen) == "" {
		return errors.New("recovery.listen is required")
	}
	if cfg.Loop.TickMs <= 0 {
		return errors.New("loop.tick_ms must be positive")
	}

	return nil
}
