// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/compass_level/internal/imu"
)

const radToDeg = 180.0 / math.Pi

// State is the canonical compass + level reading handed to displays.
type State struct {
	HeadingDeg   float64      `json:"heading_deg"` // [0, 360), 0 = magnetic north
	RollDeg      float64      `json:"roll_deg"`
	PitchDeg     float64      `json:"pitch_deg"`
	HeadingValid bool         `json:"heading_valid"`
	Accuracy     imu.Accuracy `json:"accuracy"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 {
	return rad * radToDeg
}

// NormalizeHeading maps any angle in degrees into [0, 360).
//
// For the azimuth range (-180, 180] this is the same as (h + 360) mod 360.
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg+360, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}
