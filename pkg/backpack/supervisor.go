// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package backpack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Factory builds the collaborators for one boot. It is called again after
// every restart, so drivers and modules are opened fresh each time.
type Factory func(ctx context.Context) (Options, error)

// Supervisor plays the part of the hardware reset line: it boots a Device,
// runs it, and boots a new one whenever the device asks for a restart.
type Supervisor struct {
	Factory Factory
	Tick    time.Duration
	// RestartPause is slept between boots
	RestartPause time.Duration
	// OnBoot, if set, is called after each successful Setup and before Run
	OnBoot func(*Device) error
	Logger *slog.Logger

	boots int
}

// Boots returns the number of boots so far
func (s *Supervisor) Boots() int {
	return s.boots
}

// Run boots the device until ctx is done or a boot fails with an error
// other than ErrRestart
func (s *Supervisor) Run(ctx context.Context) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if s.Tick <= 0 {
		return errors.New("supervisor: tick must be positive")
	}

	for {
		err := s.boot(ctx, logger)
		if !errors.Is(err, ErrRestart) {
			return err
		}

		logger.Info("restarting backpack", "boots", s.boots, "reason", err)
		if s.RestartPause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.RestartPause):
			}
		}
	}
}

func (s *Supervisor) boot(ctx context.Context, logger *slog.Logger) error {
	opts, err := s.Factory(ctx)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	dev, err := NewDevice(opts)
	if err != nil {
		return err
	}
	s.boots++

	runErr := dev.Setup(time.Now())
	if runErr == nil && s.OnBoot != nil {
		runErr = s.OnBoot(dev)
	}
	if runErr == nil {
		runErr = dev.Run(ctx, s.Tick)
	}

	if err := dev.Close(); err != nil {
		logger.Warn("failed to close device", "error", err)
	}
	return runErr
}
