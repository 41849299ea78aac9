// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/backpack/pkg/config"
	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/msp"
	"github.com/Thermoquad/backpack/pkg/radio"
)

const dialTimeout = 15 * time.Second

var (
	passwordOnce   sync.Once
	cachedPassword string
	passwordErr    error
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("BACKPACK_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// radioPassword asks for the air password once per process
func radioPassword() (string, error) {
	passwordOnce.Do(func() {
		cachedPassword, passwordErr = GetPassword()
	})
	return cachedPassword, passwordErr
}

// dialWebSocket connects to the air hub named in cfg
func dialWebSocket(ctx context.Context, cfg *config.Config) (*radio.WebSocketDriver, error) {
	pw := ""
	if cfg.Radio.Username != "" {
		var err error
		pw, err = radioPassword()
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return radio.DialWebSocket(ctx, cfg.Radio.URL, cfg.Radio.Username, pw, cfg.Radio.SkipSSLVerify)
}

// openDriver opens the radio driver selected by cfg and describes it
func openDriver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (radio.Driver, string, error) {
	switch cfg.Radio.Driver {
	case config.DriverWebSocket:
		d, err := dialWebSocket(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		return d, fmt.Sprintf("WebSocket: %s", cfg.Radio.URL), nil

	case config.DriverSerial:
		d, err := radio.OpenSerialDriver(cfg.Radio.Port, cfg.Radio.Baud, logger)
		if err != nil {
			return nil, "", err
		}
		return d, fmt.Sprintf("Serial: %s @ %d baud", cfg.Radio.Port, cfg.Radio.Baud), nil

	case config.DriverMemory:
		// A lone driver on a private medium: useful for dry runs only
		return radio.NewMedium().NewDriver(), "Memory (no peers)", nil

	default:
		return nil, "", fmt.Errorf("unknown radio driver %q", cfg.Radio.Driver)
	}
}

// transmitter is the transmitter side of a link, used by the air tools
type transmitter struct {
	transport *radio.Transport
	packets   chan *msp.Packet
	connInfo  string
	address   identity.Address
}

// openTransmitter opens a driver and starts a transport that transmits as
// the paired address, so the backpack accepts its frames
func openTransmitter(ctx context.Context, cfg *config.Config) (*transmitter, error) {
	addr, err := toolAddress(cfg)
	if err != nil {
		return nil, err
	}

	logger := logs.Logger("transmitter")
	driver, connInfo, err := openDriver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	tx := &transmitter{
		packets:  make(chan *msp.Packet, 64),
		connInfo: connInfo,
		address:  addr.Unicast(),
	}
	tx.transport = radio.NewTransport(driver, nil, func(src identity.Address, p *msp.Packet) {
		select {
		case tx.packets <- p:
		default:
		}
	}, logger)
	tx.transport.SetPeer(addr)

	if err := tx.transport.Start(); err != nil {
		driver.Close()
		return nil, err
	}
	return tx, nil
}

// send transmits p to the paired backpack
func (tx *transmitter) send(p *msp.Packet) error {
	return tx.transport.SendToPeer(p)
}

// broadcast transmits p to every listener
func (tx *transmitter) broadcast(p *msp.Packet) error {
	return tx.transport.Send(identity.Broadcast, p)
}

// waitFor returns the first received packet accepted by match
func (tx *transmitter) waitFor(ctx context.Context, match func(*msp.Packet) bool) (*msp.Packet, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case p := <-tx.packets:
			if match(p) {
				return p, nil
			}
		}
	}
}

func (tx *transmitter) Close() error {
	return tx.transport.Close()
}
