// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"sync"
	"time"

	"github.com/relabs-tech/compass_level/internal/fusion"
	"github.com/relabs-tech/compass_level/internal/imu"
)

// RotationFunc builds a rotation matrix from gravity and geomagnetic
// vectors, reporting false when no orientation can be derived.
type RotationFunc func(gravity, geomagnetic imu.Vec3) (fusion.Matrix, bool)

// OrientationFunc extracts azimuth, pitch and roll (radians) from a matrix.
type OrientationFunc func(fusion.Matrix) [3]float64

// Option configures an Estimator.
type Option func(*Estimator)

// WithFusion replaces the rotation and orientation primitives.
func WithFusion(rotation RotationFunc, orient OrientationFunc) Option {
	return func(e *Estimator) {
		if rotation != nil {
			e.rotation = rotation
		}
		if orient != nil {
			e.orient = orient
		}
	}
}

// WithClock sets the time source used for State.UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		if now != nil {
			e.now = now
		}
	}
}

// Estimator turns the latest raw sensor samples into a heading and a
// roll/pitch level. Only the most recent accelerometer and magnetometer
// samples are kept; nothing is queued or filtered.
//
// Updates are expected from a single goroutine. Readers on other
// goroutines always observe a complete State.
type Estimator struct {
	mu sync.RWMutex

	accel     imu.Vec3
	mag       imu.Vec3
	haveAccel bool
	haveMag   bool

	state State

	rotation RotationFunc
	orient   OrientationFunc
	now      func() time.Time
}

// NewEstimator returns an estimator using the fusion package primitives.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		rotation: fusion.RotationMatrix,
		orient:   fusion.Orientation,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpdateGyroscope converts an angular velocity sample (rad/s) into the
// level readout: pitch from the Y axis, roll from the Z axis.
//
// The rate is converted, not integrated over time, so a device at rest
// reads 0/0 regardless of its tilt.
func (e *Estimator) UpdateGyroscope(sample imu.Vec3) (rollDeg, pitchDeg float64) {
	pitchDeg = ToDegrees(sample.Y)
	rollDeg = ToDegrees(sample.Z)

	e.mu.Lock()
	e.state.PitchDeg = pitchDeg
	e.state.RollDeg = rollDeg
	e.state.UpdatedAt = e.now()
	e.mu.Unlock()
	return rollDeg, pitchDeg
}

// UpdateAcceleration records the latest accelerometer sample and
// recomputes the heading if a magnetometer sample is also available.
func (e *Estimator) UpdateAcceleration(sample imu.Vec3) (headingDeg float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accel = sample
	e.haveAccel = true
	return e.updateHeadingLocked()
}

// UpdateMagnetic records the latest magnetometer sample and recomputes the
// heading if an accelerometer sample is also available.
func (e *Estimator) UpdateMagnetic(sample imu.Vec3) (headingDeg float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mag = sample
	e.haveMag = true
	return e.updateHeadingLocked()
}

// updateHeadingLocked returns the current heading and whether it was
// refreshed by this call. A failed rotation keeps the previous heading.
func (e *Estimator) updateHeadingLocked() (float64, bool) {
	if !e.haveAccel || !e.haveMag {
		return e.state.HeadingDeg, false
	}
	m, ok := e.rotation(e.accel, e.mag)
	if !ok {
		return e.state.HeadingDeg, false
	}
	azimuth := e.orient(m)[0]
	e.state.HeadingDeg = NormalizeHeading(ToDegrees(azimuth))
	e.state.HeadingValid = true
	e.state.UpdatedAt = e.now()
	return e.state.HeadingDeg, true
}

// HeadingResult reports what an event did to the heading.
type HeadingResult int

const (
	HeadingUnchanged HeadingResult = iota // gyro event or a sample still missing
	HeadingUpdated
	HeadingRejected // no rotation could be derived; the previous heading is kept
)

// Handle dispatches one sensor event and returns the resulting state.
// The event accuracy is recorded as-is; it never affects the computation.
// Events of an unknown kind only update the accuracy.
func (e *Estimator) Handle(ev imu.Event) State {
	s, _ := e.Apply(ev)
	return s
}

// Apply is Handle that also reports the effect on the heading.
func (e *Estimator) Apply(ev imu.Event) (State, HeadingResult) {
	res := HeadingUnchanged
	switch ev.Kind {
	case imu.KindAcceleration, imu.KindMagneticField:
		var ok bool
		if ev.Kind == imu.KindAcceleration {
			_, ok = e.UpdateAcceleration(ev.Values)
		} else {
			_, ok = e.UpdateMagnetic(ev.Values)
		}
		switch {
		case ok:
			res = HeadingUpdated
		case e.Ready():
			res = HeadingRejected
		}
	case imu.KindAngularVelocity:
		e.UpdateGyroscope(ev.Values)
	}
	e.SetAccuracy(ev.Accuracy)
	return e.State(), res
}

// SetAccuracy records the most recently reported sensor accuracy.
func (e *Estimator) SetAccuracy(a imu.Accuracy) {
	e.mu.Lock()
	e.state.Accuracy = a
	e.mu.Unlock()
}

// State returns a snapshot of the current outputs.
func (e *Estimator) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Ready reports whether both samples needed for a heading have been seen.
func (e *Estimator) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.haveAccel && e.haveMag
}

// Reset forgets all cached samples and outputs.
func (e *Estimator) Reset() {
	e.mu.Lock()
	e.accel, e.mag = imu.Vec3{}, imu.Vec3{}
	e.haveAccel, e.haveMag = false, false
	e.state = State{}
	e.mu.Unlock()
}
