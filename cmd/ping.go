// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/msp"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ask a paired backpack for its version",
	Long: `Send GET_BACKPACK_VERSION to the paired backpack and wait for the response.

The request is sent from the paired address (--peer or identity.fixed_address).
A backpack that is binding or in recovery mode does not answer.

This is useful for verifying:
  - The radio connection is established
  - The backpack is paired to the expected address
  - Bidirectional packet flow works

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Backpack - Version Ping\n")
	fmt.Printf("Connection: %s\n", tx.connInfo)
	fmt.Printf("Peer: %s\n", tx.address)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if err := tx.send(msp.NewVersionRequest()); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(pingTimeout)*time.Second)
		packet, err := tx.waitFor(ctx, func(p *msp.Packet) bool {
			return p.IsResponse() && p.Function() == msp.FuncGetBackpackVersion
		})
		cancel()

		if err != nil {
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		} else {
			rtt := time.Since(startTime)
			fmt.Printf("backpack %s, rtt=%v\n", versionString(packet.Payload()), rtt.Round(time.Millisecond))
			successCount++
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

// versionString returns the NUL-terminated version carried by a version response
func versionString(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	return string(payload)
}
