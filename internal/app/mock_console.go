// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/display"
	"github.com/relabs-tech/compass_level/internal/orientation"
	"github.com/relabs-tech/compass_level/internal/sensors"
)

// RunMockConsole runs the estimator on the mock source and prints the
// result, without any hardware or broker. It uses the global config if
// one was loaded.
func RunMockConsole() error {
	cfg := config.Get()
	if cfg == nil {
		cfg = config.Default()
	}
	ctx, stop := signalContext()
	defer stop()

	p := &Pipeline{
		Source:    sensors.NewMockSource(cfg.SampleInterval()),
		Estimator: orientation.NewEstimator(),
		Sink:      display.NewThrottle(display.NewConsole(nil), cfg.ConsoleInterval()),
	}
	return runPipeline(ctx, p)
}
