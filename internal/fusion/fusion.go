// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion turns an accelerometer and a magnetometer reading into a
// device rotation matrix and extracts azimuth, pitch and roll from it.
//
// The matrix maps device coordinates into a world frame where X points
// east, Y points to magnetic north and Z points to the sky. Both functions
// follow the conventions of the Android SensorManager primitives so that
// headings match what a phone shows.
package fusion

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/compass_level/internal/imu"
)

// StandardGravity in m/s².
const StandardGravity = 9.80665

const (
	// A gravity vector with less than 10% of g means the device is in
	// free fall and no "down" can be recovered.
	freeFallGravitySquared = 0.01 * StandardGravity * StandardGravity

	// Minimum magnitude of E x A. Below this the field is (nearly)
	// parallel to gravity, or the device is close to a magnetic pole.
	minHorizontalField = 0.1
)

// Matrix is a row-major 3x3 rotation matrix.
type Matrix [9]float64

// Identity is the rotation of a device lying flat with its Y axis
// pointing to magnetic north.
var Identity = Matrix{1, 0, 0, 0, 1, 0, 0, 0, 1}

// RotationMatrix computes the rotation matrix for the given gravity and
// geomagnetic vectors. ok is false if the inputs are degenerate, in which
// case the returned matrix must not be used.
func RotationMatrix(gravity, geomagnetic imu.Vec3) (m Matrix, ok bool) {
	a := toR3(gravity)
	e := toR3(geomagnetic)

	if a.Norm2() < freeFallGravitySquared {
		return Matrix{}, false
	}

	h := e.Cross(a)
	normH := h.Norm()
	if normH < minHorizontalField {
		return Matrix{}, false
	}
	h = h.Mul(1 / normH)
	a = a.Normalize()
	n := a.Cross(h)

	return Matrix{
		h.X, h.Y, h.Z,
		n.X, n.Y, n.Z,
		a.X, a.Y, a.Z,
	}, true
}

// Orientation extracts azimuth, pitch and roll in radians, in that order.
// Azimuth is the rotation about -Z from magnetic north, in (-π, π].
func Orientation(m Matrix) [3]float64 {
	return [3]float64{
		math.Atan2(m[1], m[4]),
		math.Asin(-m[7]),
		math.Atan2(-m[6], m[8]),
	}
}

func toR3(v imu.Vec3) r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}
