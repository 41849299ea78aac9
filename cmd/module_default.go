// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !vrx_msp

package cmd

import (
	"log/slog"

	"github.com/Thermoquad/backpack/pkg/config"
	"github.com/Thermoquad/backpack/pkg/vrx"
	"github.com/Thermoquad/backpack/pkg/vrx/logvrx"
)

// moduleName names the compiled-in video receiver family
const moduleName = "log"

// newModule returns the compiled-in video receiver module
func newModule(_ *config.Config, logger *slog.Logger) vrx.Module {
	return logvrx.New(logger)
}
