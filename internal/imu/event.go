// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"time"
)

// Kind identifies which sensor produced an event.
type Kind string

const (
	KindAcceleration    Kind = "acceleration"     // m/s²
	KindMagneticField   Kind = "magnetic_field"   // µT
	KindAngularVelocity Kind = "angular_velocity" // rad/s
)

// Valid reports whether k is one of the known sensor kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAcceleration, KindMagneticField, KindAngularVelocity:
		return true
	}
	return false
}

// Vec3 is a single three-axis sample in device coordinates.
// x: side to side, y: front to back, z: up and down.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Event is one reading delivered by a sensor source.
type Event struct {
	Kind      Kind      `json:"kind" yaml:"kind"`
	Values    Vec3      `json:"values" yaml:"values"`
	Accuracy  Accuracy  `json:"accuracy" yaml:"accuracy"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp,omitempty"`
}

// Validate checks that the event can be handed to the estimator.
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// Source is anything that delivers sensor events one at a time.
// Next blocks until an event is available and returns io.EOF once the
// source is exhausted or closed.
type Source interface {
	Next() (Event, error)
}
