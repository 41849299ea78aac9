// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/config"
	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/logging"
)

// Version is reported by --version and in GET_BACKPACK_VERSION responses
const Version = "1.0.0"

var (
	configPath string
	logLevel   string

	// Serial bridge flags
	portName string
	baudRate int

	// WebSocket air flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Address the transmitter-side tools use
	peerAddress string

	logs = logging.NewManager(os.Stderr)
)

var rootCmd = &cobra.Command{
	Use:   "backpack",
	Short: "VRx backpack",
	Long: `Backpack - the receiver-side companion that pairs with a transmitter
over a short-range radio and relays channel, recording, head-tracking, OSD
and telemetry commands to the video goggles.

The run command is the backpack itself. The other commands act as the
transmitter side or as air tools for testing a backpack.

Radio connection modes:
  WebSocket air: --url ws://host/air [--username user]
  Serial bridge: --port /dev/ttyUSB0 [--baud 460800]

For WebSocket authentication, the password is read from the BACKPACK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Serial bridge flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Radio bridge serial port")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only)")

	// WebSocket air flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket air URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&peerAddress, "peer", "", "Paired address used by transmitter-side tools (AA:BB:CC:DD:EE:FF)")
}

// Execute runs the root command
func Execute() error {
	defer logs.Close()
	return rootCmd.Execute()
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if wsURL != "" {
		cfg.Radio.Driver = config.DriverWebSocket
		cfg.Radio.URL = wsURL
	}
	if wsUsername != "" {
		cfg.Radio.Username = wsUsername
	}
	if wsNoSSLVerify {
		cfg.Radio.SkipSSLVerify = true
	}
	if portName != "" {
		cfg.Radio.Driver = config.DriverSerial
		cfg.Radio.Port = portName
	}
	if baudRate > 0 {
		cfg.Radio.Baud = baudRate
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup loads the configuration and configures logging. Quiet sends logs
// to the log file only.
func setup(quiet bool) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := logs.Configure(cfg.Logging, quiet); err != nil {
		return nil, err
	}
	return cfg, nil
}

// toolAddress returns the address the transmitter-side tools transmit from:
// --peer, else the configured fixed address
func toolAddress(cfg *config.Config) (identity.Address, error) {
	raw := peerAddress
	if raw == "" {
		raw = cfg.Identity.FixedAddress
	}
	if raw == "" {
		return identity.Address{}, fmt.Errorf("a transmitter address is required: use --peer or identity.fixed_address")
	}
	return identity.ParseAddress(raw)
}
