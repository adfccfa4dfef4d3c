// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/fusion"
	"github.com/relabs-tech/compass_level/internal/imu"
)

// accelGyro is the subset of the MPU-9250 driver the source reads from.
type accelGyro interface {
	GetAccelerationX() (int16, error)
	GetAccelerationY() (int16, error)
	GetAccelerationZ() (int16, error)
	GetRotationX() (int16, error)
	GetRotationY() (int16, error)
	GetRotationZ() (int16, error)
}

type imuSource struct {
	dev      accelGyro
	accelLSB float64 // counts per g
	gyroLSB  float64 // counts per °/s
	accuracy imu.Accuracy
	interval time.Duration
	sleep    func(time.Duration)
	now      func() time.Time

	pending []imu.Event
}

// NewIMUSource initializes the MPU-9250 over SPI and returns a source of
// acceleration and angular velocity events.
func NewIMUSource(cfg *config.Config) (imu.Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.IMUCSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", cfg.IMUCSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.IMUSPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", cfg.IMUSPIDevice, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if err := dev.SetAccelRange(cfg.IMUAccelRange); err != nil {
		return nil, fmt.Errorf("IMU: set accel range: %w", err)
	}
	log.Printf("IMU: accelerometer range set to %d (±%dg)", cfg.IMUAccelRange, []int{2, 4, 8, 16}[cfg.IMUAccelRange])

	if err := dev.SetGyroRange(cfg.IMUGyroRange); err != nil {
		return nil, fmt.Errorf("IMU: set gyro range: %w", err)
	}
	log.Printf("IMU: gyroscope range set to %d (±%d°/s)", cfg.IMUGyroRange, []int{250, 500, 1000, 2000}[cfg.IMUGyroRange])

	accuracy := imu.AccuracyHigh
	if _, err := dev.SelfTest(); err != nil {
		log.Printf("IMU: WARNING: self-test failed: %v", err)
		accuracy = imu.AccuracyLow
	}
	if err := dev.Calibrate(); err != nil {
		log.Printf("IMU: WARNING: calibration failed: %v", err)
		accuracy = imu.AccuracyLow
	} else {
		log.Println("IMU: calibration complete")
	}

	return newIMUSource(dev, cfg.IMUAccelRange, cfg.IMUGyroRange, accuracy, cfg.SampleInterval()), nil
}

func newIMUSource(dev accelGyro, accelRange, gyroRange byte, accuracy imu.Accuracy, interval time.Duration) *imuSource {
	return &imuSource{
		dev:      dev,
		accelLSB: AccelCountsPerG(accelRange),
		gyroLSB:  GyroCountsPerDPS(gyroRange),
		accuracy: accuracy,
		interval: interval,
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// AccelCountsPerG is the MPU-9250 accelerometer sensitivity for a
// full-scale range code (0=±2g .. 3=±16g).
func AccelCountsPerG(rangeCode byte) float64 {
	return 16384.0 / float64(int(1)<<(rangeCode&3))
}

// GyroCountsPerDPS is the MPU-9250 gyroscope sensitivity for a full-scale
// range code (0=±250°/s .. 3=±2000°/s).
func GyroCountsPerDPS(rangeCode byte) float64 {
	return 131.0 / float64(int(1)<<(rangeCode&3))
}

// Next returns the acceleration event of a fresh sample, then its angular
// velocity event. A new sample is read every interval.
func (s *imuSource) Next() (imu.Event, error) {
	if len(s.pending) == 0 {
		if s.interval > 0 {
			s.sleep(s.interval)
		}
		if err := s.sample(); err != nil {
			return imu.Event{}, err
		}
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *imuSource) sample() error {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return fmt.Errorf("IMU accel Z: %w", err)
	}
	gx, err := s.dev.GetRotationX()
	if err != nil {
		return fmt.Errorf("IMU gyro X: %w", err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return fmt.Errorf("IMU gyro Y: %w", err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return fmt.Errorf("IMU gyro Z: %w", err)
	}

	t := s.now()
	toMS2 := fusion.StandardGravity / s.accelLSB
	toRadS := math.Pi / 180 / s.gyroLSB
	s.pending = append(s.pending,
		imu.Event{
			Kind:      imu.KindAcceleration,
			Values:    imu.Vec3{X: float64(ax) * toMS2, Y: float64(ay) * toMS2, Z: float64(az) * toMS2},
			Accuracy:  s.accuracy,
			Timestamp: t,
		},
		imu.Event{
			Kind:      imu.KindAngularVelocity,
			Values:    imu.Vec3{X: float64(gx) * toRadS, Y: float64(gy) * toRadS, Z: float64(gz) * toRadS},
			Accuracy:  s.accuracy,
			Timestamp: t,
		},
	)
	return nil
}
