// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/imu"
	"github.com/relabs-tech/compass_level/internal/sensors/hmc5983"
)

// fieldSensor is the subset of the HMC5983 driver the source reads from.
type fieldSensor interface {
	Sense() (x, y, z float64, err error)
}

type magSource struct {
	dev      fieldSensor
	bus      i2c.BusCloser
	interval time.Duration
	sleep    func(time.Duration)
	now      func() time.Time
}

// NewMagSource opens the configured I2C bus and returns a source of
// magnetic field events read from an HMC5983.
func NewMagSource(cfg *config.Config) (imu.Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("mag: periph host init: %w", err)
	}

	bus, err := i2creg.Open(cfg.MagI2CBus)
	if err != nil {
		return nil, fmt.Errorf("mag: i2c open failed on bus %q: %w", cfg.MagI2CBus, err)
	}

	dev, err := hmc5983.New(bus, hmc5983.Opts{
		Addr:       cfg.MagI2CAddr,
		ODRHz:      cfg.MagODRHz,
		AvgSamples: cfg.MagAvgSamples,
		GainCode:   cfg.MagGainCode,
	})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("mag: init failed: %w", err)
	}
	if id, err := dev.ID(); err != nil {
		log.Printf("mag: WARNING: failed to read ID: %v", err)
	} else {
		log.Printf("mag: HMC5983 ID=%q (addr=0x%X)", id, cfg.MagI2CAddr)
	}

	interval := time.Second / 15
	if cfg.MagODRHz > 0 {
		interval = time.Second / time.Duration(cfg.MagODRHz)
	}
	return &magSource{
		dev:      dev,
		bus:      bus,
		interval: interval,
		sleep:    time.Sleep,
		now:      time.Now,
	}, nil
}

// Next waits one output period and returns the next field reading.
// Saturated readings are skipped.
func (s *magSource) Next() (imu.Event, error) {
	for {
		if s.interval > 0 {
			s.sleep(s.interval)
		}
		x, y, z, err := s.dev.Sense()
		if errors.Is(err, hmc5983.ErrOverflow) {
			log.Printf("mag: overflow, skipping sample")
			continue
		}
		if err != nil {
			return imu.Event{}, fmt.Errorf("mag: %w", err)
		}
		return imu.Event{
			Kind:      imu.KindMagneticField,
			Values:    imu.Vec3{X: x, Y: y, Z: z},
			Accuracy:  imu.AccuracyHigh,
			Timestamp: s.now(),
		}, nil
	}
}

func (s *magSource) Close() error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Close()
}
