// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/config"
	"github.com/Thermoquad/backpack/pkg/msp"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test the radio by waiting for a valid MSP packet",
	Long: `Wait for a valid MSP packet on the radio until timeout.

On the WebSocket air any station's packet counts. On a serial bridge the
command listens as the paired address (--peer or identity.fixed_address), so
a running backpack's status requests or version responses count.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg, err := setup(false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(packetTestTimeout)*time.Second)
	defer cancel()

	packetChan := make(chan *msp.Packet, 1)
	var connInfo string

	if cfg.Radio.Driver == config.DriverWebSocket {
		d, frames, info, err := openSniffer(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer d.Close()
		connInfo = info

		go func() {
			decoder := newStreamDecoder()
			for {
				select {
				case <-ctx.Done():
					return
				case f := <-frames:
					for _, e := range decoder.feed(f) {
						if e.packet != nil {
							packetChan <- e.packet
							return
						}
					}
				}
			}
		}()
	} else {
		tx, err := openTransmitter(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
		defer tx.Close()
		connInfo = tx.connInfo

		go func() {
			if p, err := tx.waitFor(ctx, func(*msp.Packet) bool { return true }); err == nil {
				packetChan <- p
			}
		}()
	}

	fmt.Printf("Backpack - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid MSP packet...\n\n")

	// Wait for packet or timeout
	select {
	case packet := <-packetChan:
		fmt.Printf("SUCCESS: Received valid packet\n")
		fmt.Printf("  Function: %s (0x%04X)\n", msp.FormatFunction(packet.Function()), packet.Function())
		fmt.Printf("  Direction: %s\n", packet.Direction())
		fmt.Printf("  Length: %d bytes\n", packet.PayloadSize())
		fmt.Printf("  CRC: 0x%02X\n", packet.CRC())
		return nil

	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
