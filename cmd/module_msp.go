// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build vrx_msp

package cmd

import (
	"log/slog"

	"github.com/Thermoquad/backpack/pkg/config"
	"github.com/Thermoquad/backpack/pkg/vrx"
	"github.com/Thermoquad/backpack/pkg/vrx/mspvrx"
)

// moduleName names the compiled-in video receiver family
const moduleName = "msp"

// newModule returns the compiled-in video receiver module
func newModule(cfg *config.Config, logger *slog.Logger) vrx.Module {
	return mspvrx.New(cfg.Module.Port, cfg.Module.Baud, logger)
}
