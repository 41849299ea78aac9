// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/msp"
)

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed packets on the air",
	Long: `Track corrupted frames and packets a backpack would reject, with statistics.

This command validates each packet and detects:
  - Checksum errors and malformed headers
  - Payloads that do not match their function's layout
  - Channel indexes outside the 48-entry table
  - Unknown function codes and unexpected responses
  - Statistics and trends (packet rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid packets too.

Packets are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.

Requires the WebSocket air (--url).`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	cfg, err := setup(false)
	if err != nil {
		return err
	}

	d, frames, connInfo, err := openSniffer(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Printf("Backpack - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := newStreamDecoder()

	// Sync tracking - ignore decode errors from a sender until its first valid packet
	synchronized := make(map[identity.Address]bool)

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-d.Done():
			log.Printf("Connection closed")
			return nil

		case f := <-frames:
			for _, e := range decoder.feed(f) {
				if e.err != nil {
					if synchronized[e.src] {
						printDecodeError(e.src, e.err)
					}
					continue
				}

				if !synchronized[e.src] {
					synchronized[e.src] = true
					fmt.Printf("[SYNC] %s synchronized\n\n", e.src)
				}

				validationErrors := msp.ValidatePacket(e.packet)
				if len(validationErrors) > 0 {
					decoder.stats.RecordRejected()
					printValidationErrors(e.src, e.packet, validationErrors)
				} else if showAll {
					fmt.Printf("%s -> %s ", e.src, e.dst)
					fmt.Print(msp.FormatPacket(e.packet))
				}
			}

		case <-statsTicker.C:
			// Print statistics
			fmt.Println()
			fmt.Print(decoder.stats.String())
			fmt.Println()
		}
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(src identity.Address, err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %s: %v\n", timestamp, src, err)
	fmt.Printf("  >>> FRAME DISCARDED <<<\n\n")
}

// printValidationErrors prints validation errors for a packet
func printValidationErrors(src identity.Address, packet *msp.Packet, errors []msp.ValidationError) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	fn := msp.FormatFunction(packet.Function())

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%04X) from %s\n", timestamp, fn, packet.Function(), src)
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case msp.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if received, ok := err.Details["received"].(int); ok {
				if expected, ok := err.Details["expected"].(int); ok {
					fmt.Printf("    Length: received=%d, expected=%d\n", received, expected)
				}
			}
			if length, ok := err.Details["length"].(int); ok {
				if minimum, ok := err.Details["minimum"].(int); ok {
					fmt.Printf("    Length: received=%d, minimum=%d\n", length, minimum)
				}
			}

		case msp.AnomalyOutOfRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  >>> PACKET REJECTED <<<\n\n")
}
