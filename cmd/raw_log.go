// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/msp"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display air traffic in human-readable format",
	Long: `Continuously decode and display MSP packets exchanged on the air.

Every frame is shown regardless of its destination, with the sending and
receiving addresses, timestamp, function and decoded payload.

Requires the WebSocket air (--url).`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := setup(false)
	if err != nil {
		return err
	}

	d, frames, connInfo, err := openSniffer(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Printf("Backpack - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := newStreamDecoder()
	for {
		select {
		case <-d.Done():
			log.Printf("Connection closed")
			return nil

		case f := <-frames:
			for _, e := range decoder.feed(f) {
				if e.err != nil {
					fmt.Printf("[ERROR] %s: %v\n", e.src, e.err)
					continue
				}
				fmt.Printf("%s -> %s ", e.src, e.dst)
				fmt.Print(msp.FormatPacket(e.packet))
			}
		}
	}
}
