// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/recovery"
)

var (
	recoveryEndpoint string
	recoveryClockAt  string
)

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Talk to a backpack in recovery mode",
	Long: `Query and control a backpack that is in recovery mode.

In recovery mode the radio is down and the backpack serves HTTP on
recovery.listen. Use 'control recovery' to put a running backpack there.

The endpoint defaults to http://<recovery.listen>.`,
}

var recoveryStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show health and identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, cancel, err := recoveryClient()
		if err != nil {
			return err
		}
		defer cancel()

		h, err := client.Health(ctx)
		if err != nil {
			return err
		}
		id, err := client.Identity(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Status:            %s\n", h.Status)
		fmt.Printf("Version:           %s\n", h.Version)
		fmt.Printf("Uptime:            %s\n", formatUptime(uint64(h.UptimeSeconds)*1000))
		fmt.Printf("Boot count:        %d\n", id.BootCount)
		fmt.Printf("Paired address:    %s\n", id.PairedAddress)
		fmt.Printf("Start in recovery: %v\n", id.StartInRecovery)
		return nil
	},
}

var recoveryClockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Set the video receiver clock",
	Long: `Set the video receiver clock. Without --time, this machine's current
time is sent.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t := time.Now().UTC()
		if recoveryClockAt != "" {
			var err error
			if t, err = time.Parse(time.RFC3339, recoveryClockAt); err != nil {
				return fmt.Errorf("invalid --time (RFC 3339): %w", err)
			}
		}

		client, ctx, cancel, err := recoveryClient()
		if err != nil {
			return err
		}
		defer cancel()

		queued, err := client.SyncClock(ctx, t)
		if err != nil {
			return err
		}
		fmt.Printf("Clock sync queued: %s\n", queued.UTC().Format(time.RFC3339))
		return nil
	},
}

var recoveryRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Leave recovery mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, cancel, err := recoveryClient()
		if err != nil {
			return err
		}
		defer cancel()

		if err := client.Restart(ctx); err != nil {
			return err
		}
		fmt.Println("Restart requested")
		return nil
	},
}

func init() {
	recoveryCmd.PersistentFlags().StringVar(&recoveryEndpoint, "endpoint", "", "Recovery endpoint URL")
	recoveryClockCmd.Flags().StringVar(&recoveryClockAt, "time", "", "Time to set (RFC 3339)")

	recoveryCmd.AddCommand(recoveryStatusCmd, recoveryClockCmd, recoveryRestartCmd)
	rootCmd.AddCommand(recoveryCmd)
}

func recoveryClient() (*recovery.Client, context.Context, context.CancelFunc, error) {
	cfg, err := setup(false)
	if err != nil {
		return nil, nil, nil, err
	}

	endpoint := recoveryEndpoint
	if endpoint == "" {
		endpoint = "http://" + cfg.Recovery.Listen
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	return recovery.NewClient(endpoint, nil), ctx, cancel, nil
}
