// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"math"
	"time"

	"github.com/relabs-tech/compass_level/internal/fusion"
	"github.com/relabs-tech/compass_level/internal/imu"
)

// Horizontal and vertical components of the synthetic earth field, µT.
const (
	mockFieldHorizontal = 20.0
	mockFieldVertical   = -45.0
)

type mockSource struct {
	start    time.Time
	now      func() time.Time
	sleep    func(time.Duration)
	interval time.Duration
	next     int
}

// NewMockSource creates a mock sensor source for a device lying roughly
// flat and turning slowly clockwise at 30°/s while rocking gently.
// It emits acceleration, magnetic field and angular velocity events in
// turn and waits interval after each complete round.
func NewMockSource(interval time.Duration) imu.Source {
	return &mockSource{
		start:    time.Now(),
		now:      time.Now,
		sleep:    time.Sleep,
		interval: interval,
	}
}

func (m *mockSource) Next() (imu.Event, error) {
	if m.next == 0 && m.interval > 0 {
		m.sleep(m.interval)
	}
	t := m.now()
	elapsed := t.Sub(m.start).Seconds()

	ev := imu.Event{Accuracy: imu.AccuracyHigh, Timestamp: t}
	switch m.next {
	case 0:
		ev.Kind = imu.KindAcceleration
		ev.Values = mockGravity(elapsed)
	case 1:
		ev.Kind = imu.KindMagneticField
		ev.Values = mockField(elapsed)
	case 2:
		ev.Kind = imu.KindAngularVelocity
		ev.Values = mockRates(elapsed)
	}
	m.next = (m.next + 1) % 3
	return ev, nil
}

func mockHeadingRad(elapsed float64) float64 {
	return math.Mod(elapsed*30, 360) * math.Pi / 180
}

// mockGravity tilts the reaction-to-gravity vector by up to 5° about X.
func mockGravity(elapsed float64) imu.Vec3 {
	tilt := 5 * math.Pi / 180 * math.Sin(elapsed)
	return imu.Vec3{
		Y: fusion.StandardGravity * math.Sin(tilt),
		Z: fusion.StandardGravity * math.Cos(tilt),
	}
}

// mockField is the earth field seen by a flat device whose Y axis is
// turned clockwise from north by the mock heading.
func mockField(elapsed float64) imu.Vec3 {
	h := mockHeadingRad(elapsed)
	return imu.Vec3{
		X: -mockFieldHorizontal * math.Sin(h),
		Y: mockFieldHorizontal * math.Cos(h),
		Z: mockFieldVertical,
	}
}

func mockRates(elapsed float64) imu.Vec3 {
	return imu.Vec3{
		X: 5 * math.Pi / 180 * math.Cos(elapsed),
		Y: 0.2 * math.Sin(elapsed*0.7),
		Z: -30 * math.Pi / 180,
	}
}
