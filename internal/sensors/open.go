// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/imu"
)

// Open builds the event source selected by cfg.SensorSource. sub is only
// used by the mqtt source and may be nil otherwise.
//
// With the imu source the magnetometer is optional: if it cannot be
// opened the compass runs as a level only.
func Open(cfg *config.Config, sub Subscriber) (imu.Source, error) {
	switch cfg.SensorSource {
	case config.SourceMock:
		log.Printf("sensors: using mock source (%v)", cfg.SampleInterval())
		return NewMockSource(cfg.SampleInterval()), nil

	case config.SourceIMU:
		ag, err := NewIMUSource(cfg)
		if err != nil {
			return nil, err
		}
		if !cfg.MagEnable {
			log.Println("sensors: magnetometer disabled, heading unavailable")
			return ag, nil
		}
		mag, err := NewMagSource(cfg)
		if err != nil {
			log.Printf("sensors: magnetometer not available: %v", err)
			return ag, nil
		}
		return Merge(ag, mag), nil

	case config.SourceMQTT:
		if sub == nil {
			return nil, fmt.Errorf("sensors: mqtt source needs a client")
		}
		return NewMQTTSource(sub, cfg.TopicSensorEvents, 0)

	case config.SourceReplay:
		tr, err := LoadReplay(cfg.ReplayPath)
		if err != nil {
			return nil, err
		}
		log.Printf("sensors: replaying %q (%d events, loop=%v)", tr.Name, len(tr.Events), cfg.ReplayLoop)
		return NewReplaySource(tr, cfg.ReplayLoop), nil
	}
	return nil, fmt.Errorf("sensors: unknown source %q", cfg.SensorSource)
}
