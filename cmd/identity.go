// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/identity"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect or modify the stored identity record",
	Long: `Inspect or modify the persisted identity record at identity.path.

The record holds the boot counter used to detect the power-cycle binding
gesture, the paired transmitter address, and the start-in-recovery flag.
Do not modify it while the backpack is running.`,
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the identity record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, path, err := openIdentity()
		if err != nil {
			return err
		}
		printIdentity(path, store.Record())
		return nil
	},
}

var identityResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the pairing, boot counter and recovery flag",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, path, err := openIdentity()
		if err != nil {
			return err
		}
		store.Reset()
		if err := store.Commit(); err != nil {
			return err
		}
		fmt.Printf("Identity reset: %s\n", path)
		return nil
	},
}

var identityPairCmd = &cobra.Command{
	Use:   "pair <AA:BB:CC:DD:EE:FF>",
	Short: "Store a paired address without the binding procedure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := identity.ParseAddress(args[0])
		if err != nil {
			return err
		}
		store, path, err := openIdentity()
		if err != nil {
			return err
		}
		store.SetPairedAddress(addr)
		store.SetBootCount(0)
		if err := store.Commit(); err != nil {
			return err
		}
		printIdentity(path, store.Record())
		return nil
	},
}

func init() {
	identityCmd.AddCommand(identityShowCmd, identityResetCmd, identityPairCmd)
	rootCmd.AddCommand(identityCmd)
}

func openIdentity() (*identity.Store, string, error) {
	cfg, err := setup(false)
	if err != nil {
		return nil, "", err
	}
	if cfg.Identity.Path == "" {
		return nil, "", errors.New("identity.path is empty: the identity lives in memory only")
	}

	store, err := identity.Open(identity.NewFileProvider(cfg.Identity.Path), logs.Logger("identity"))
	if err != nil {
		return nil, "", err
	}
	return store, cfg.Identity.Path, nil
}

func printIdentity(path string, r identity.Record) {
	paired := "(none)"
	if !r.PairedAddress.IsZero() {
		paired = r.PairedAddress.String()
	}

	fmt.Printf("Identity: %s\n", path)
	fmt.Printf("  Boot count:        %d\n", r.BootCount)
	fmt.Printf("  Paired address:    %s\n", paired)
	fmt.Printf("  Start in recovery: %v\n", r.StartInRecovery)
}
