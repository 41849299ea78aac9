// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/radio"
)

var (
	hubListen        string
	hubPath          string
	hubStatsInterval int
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Serve a simulated radio air over WebSocket",
	Long: `Serve a WebSocket endpoint that relays every radio frame to all other
connected stations, standing in for the 2.4 GHz air between a transmitter
and its backpacks.

With --username set, stations must authenticate with HTTP Basic auth; the
password is read from BACKPACK_PASSWORD or prompted.

Examples:
  backpack hub --listen :8080
  backpack run --url ws://localhost:8080/air
  backpack bind --url ws://localhost:8080/air --peer 10:20:30:40:50:60`,
	RunE: runHub,
}

func init() {
	rootCmd.AddCommand(hubCmd)
	hubCmd.Flags().StringVar(&hubListen, "listen", ":8080", "Listen address")
	hubCmd.Flags().StringVar(&hubPath, "path", "/air", "WebSocket path")
	hubCmd.Flags().IntVar(&hubStatsInterval, "stats-interval", 30, "Statistics log interval (seconds, 0 disables)")
}

func runHub(cmd *cobra.Command, args []string) error {
	if _, err := setup(false); err != nil {
		return err
	}

	password := ""
	if wsUsername != "" {
		var err error
		if password, err = radioPassword(); err != nil {
			return err
		}
	}

	logger := logs.Logger("hub")
	hub := radio.NewHub(wsUsername, password, logger)

	mux := http.NewServeMux()
	mux.Handle(hubPath, hub)
	server := &http.Server{
		Addr:              hubListen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	fmt.Printf("Backpack - Air Hub\n")
	fmt.Printf("Listening: ws://%s%s\n", hubListen, hubPath)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	var stats <-chan time.Time
	if hubStatsInterval > 0 {
		ticker := time.NewTicker(time.Duration(hubStatsInterval) * time.Second)
		defer ticker.Stop()
		stats = ticker.C
	}

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("hub server: %w", err)

		case <-stats:
			logger.Info("air statistics", "clients", hub.Clients(), "relayed", hub.Relayed(), "dropped", hub.Dropped())

		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	}
}
