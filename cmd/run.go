// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/backpack"
	"github.com/Thermoquad/backpack/pkg/config"
	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/recovery"
)

var (
	runTUI          bool
	runBindOnBoot   bool
	runRestartPause time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the backpack",
	Long: `Run the VRx backpack: load the identity, join the radio, and relay
commands from the paired transmitter to the video receiver.

The backpack reboots itself after binding and when recovery mode is
requested. In recovery mode the radio stays down and an HTTP endpoint
(recovery.listen) accepts clock sync and restart requests.

Use --bind to enter binding mode on the first boot.
Use --tui for a live dashboard (logs go to logging.file only).`,
	RunE: runBackpack,
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the live dashboard")
	runCmd.Flags().BoolVar(&runBindOnBoot, "bind", false, "Enter binding mode after the first boot")
	runCmd.Flags().DurationVar(&runRestartPause, "restart-pause", 100*time.Millisecond, "Pause between reboots")
	rootCmd.AddCommand(runCmd)
}

func runBackpack(cmd *cobra.Command, args []string) error {
	cfg, err := setup(runTUI)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Prompt before the dashboard takes over the terminal
	if cfg.Radio.Driver == config.DriverWebSocket && cfg.Radio.Username != "" {
		if _, err := radioPassword(); err != nil {
			return err
		}
	}

	// The provider outlives every boot so an in-memory identity survives restarts
	var provider identity.Provider
	if cfg.Identity.Path != "" {
		provider = identity.NewFileProvider(cfg.Identity.Path)
	} else {
		provider = identity.NewMemoryProvider()
	}

	var current atomic.Pointer[backpack.Device]
	var connInfo atomic.Value
	connInfo.Store("")

	bindPending := runBindOnBoot
	supervisor := &backpack.Supervisor{
		Factory: func(ctx context.Context) (backpack.Options, error) {
			opts, info, err := bootOptions(ctx, cfg, provider)
			if err == nil {
				connInfo.Store(info)
			}
			return opts, err
		},
		Tick:         cfg.Tick(),
		RestartPause: runRestartPause,
		OnBoot: func(d *backpack.Device) error {
			current.Store(d)
			if bindPending {
				bindPending = false
				d.RequestBinding()
			}
			return nil
		},
		Logger: logs.Logger("supervisor"),
	}

	if !runTUI {
		fmt.Printf("Backpack %s (%s video receiver)\n", Version, moduleName)
		fmt.Println("Press Ctrl+C to stop")
		fmt.Println()
		return ignoreCanceled(supervisor.Run(ctx))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newDashboardModel(&current, func() string { return connInfo.Load().(string) })
	p := tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := supervisor.Run(ctx)
		p.Send(supervisorDoneMsg{err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("dashboard error: %w", err)
	}

	cancel()
	return ignoreCanceled(<-done)
}

// bootOptions opens the collaborators for one boot
func bootOptions(ctx context.Context, cfg *config.Config, provider identity.Provider) (backpack.Options, string, error) {
	driver, info, err := openDriver(ctx, cfg, logs.Logger("radio"))
	if err != nil {
		return backpack.Options{}, "", err
	}

	return backpack.Options{
		Config:   cfg,
		Provider: provider,
		Driver:   driver,
		Module:   newModule(cfg, logs.Logger("vrx")),
		Recovery: recovery.NewServer(cfg.Recovery.Listen, Version, logs.Logger("recovery")),
		Version:  Version,
		Logger:   logs.Logger("backpack"),
	}, info, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
