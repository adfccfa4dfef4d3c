// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/sensors"
)

// RunHMC5983Producer publishes magnetometer events to the sensor topic.
// Together with RunIMUProducer it feeds a compass on another machine.
func RunHMC5983Producer() error {
	cfg := config.Get()
	src, err := sensors.NewMagSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource(src)
	return runProducer(cfg, "hmc5983", src)
}
