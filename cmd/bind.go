// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/msp"
)

var (
	bindTimeout  int
	bindInterval time.Duration
)

var bindCmd = &cobra.Command{
	Use:   "bind",
	Short: "Pair a backpack that is in binding mode",
	Long: `Broadcast BIND carrying the transmitter address until a backpack answers.

Put the backpack into binding mode first (power cycle it quickly several
times, or press 'b' in the run dashboard, or start it with --bind). A binding
backpack accepts BIND from any address, stores it, and restarts. After the
restart it sends status requests to the new peer; the first one received
confirms the pairing.

The transmitter address comes from --peer or identity.fixed_address.

Examples:
  backpack bind --url ws://localhost:8080/air --peer 10:20:30:40:50:60

Exit codes:
  0 - Backpack paired
  1 - No confirmation before timeout
  2 - Connection error`,
	RunE: runBind,
}

func init() {
	rootCmd.AddCommand(bindCmd)
	bindCmd.Flags().IntVar(&bindTimeout, "timeout", 30, "Timeout in seconds")
	bindCmd.Flags().DurationVar(&bindInterval, "interval", 500*time.Millisecond, "Delay between BIND broadcasts")
}

func runBind(cmd *cobra.Command, args []string) error {
	cfg, err := setup(false)
	if err != nil {
		return err
	}

	tx, err := openTransmitter(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer tx.Close()

	fmt.Printf("Backpack - Bind\n")
	fmt.Printf("Connection: %s\n", tx.connInfo)
	fmt.Printf("Address: %s\n", tx.address)
	fmt.Printf("Timeout: %d seconds\n\n", bindTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(bindTimeout)*time.Second)
	defer cancel()

	// Keep broadcasting until the confirmation arrives
	go func() {
		ticker := time.NewTicker(bindInterval)
		defer ticker.Stop()
		sent := 0
		for {
			if err := tx.broadcast(msp.NewBind(tx.address)); err != nil {
				fmt.Fprintf(os.Stderr, "BIND send failed: %v\n", err)
			} else {
				sent++
				fmt.Printf("\rBIND sent: %d", sent)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	startTime := time.Now()
	_, err = tx.waitFor(ctx, func(p *msp.Packet) bool {
		return p.Function() == msp.FuncRequestVTXPacket
	})
	cancel()
	fmt.Println()

	if err != nil {
		fmt.Printf("No backpack confirmed the pairing within %d seconds\n", bindTimeout)
		os.Exit(1)
	}

	fmt.Printf("✓ Backpack paired to %s (%v)\n", tx.address, time.Since(startTime).Round(time.Millisecond))
	return nil
}
