// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package hmc5983 drives the Honeywell HMC5983 / HMC5883L three-axis
// magnetometer over I²C.
package hmc5983

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// I2C register map for HMC5983/HMC5883L.
const (
	regCRA  = 0x00
	regCRB  = 0x01
	regMODE = 0x02
	regDATA = 0x03 // X MSB, X LSB, Z MSB, Z LSB, Y MSB, Y LSB
	regIDA  = 0x0A
)

// DefaultAddr is the fixed I2C address of the part.
const DefaultAddr = 0x1E

// Data output register value when the ADC over/underflows.
const overflow = -4096

// ErrOverflow is returned when any axis saturated; the reading is unusable.
var ErrOverflow = errors.New("hmc5983: measurement overflow")

// Typical LSB/Gauss per gain code (datasheet). Z differs slightly on the
// HMC5983.
var (
	gainXY = [8]float64{1370, 1090, 820, 660, 440, 390, 330, 230}
	gainZ  = [8]float64{1330, 980, 660, 600, 400, 355, 295, 205}
)

// Opts holds initialization options.
type Opts struct {
	Addr       uint16 // default DefaultAddr
	ODRHz      int    // 3, 7, 15, 30 or 75; anything else selects 15
	AvgSamples int    // 1, 2, 4 or 8
	GainCode   int    // 0..7, out of range selects 1 (±1.3 Ga)
	Single     bool   // single-measurement mode instead of continuous
}

// Dev represents an HMC5983 device.
type Dev struct {
	dev        i2c.Dev
	lsbPerGaXY float64
	lsbPerGaZ  float64
	single     bool
	sleep      func(time.Duration)
}

// New configures the device and returns it ready to sense.
func New(bus i2c.Bus, opts Opts) (*Dev, error) {
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	gc := opts.GainCode
	if gc < 0 || gc > 7 {
		gc = 1
	}

	d := &Dev{
		dev:        i2c.Dev{Addr: addr, Bus: bus},
		lsbPerGaXY: gainXY[gc],
		lsbPerGaZ:  gainZ[gc],
		single:     opts.Single,
		sleep:      time.Sleep,
	}

	if err := d.writeReg(regCRA, craValue(opts.AvgSamples, opts.ODRHz)); err != nil {
		return nil, fmt.Errorf("hmc5983: write CRA: %w", err)
	}
	if err := d.writeReg(regCRB, byte(gc)<<5); err != nil {
		return nil, fmt.Errorf("hmc5983: write CRB: %w", err)
	}
	if err := d.writeReg(regMODE, d.modeValue()); err != nil {
		return nil, fmt.Errorf("hmc5983: write MODE: %w", err)
	}
	d.sleep(10 * time.Millisecond)
	return d, nil
}

// craValue packs averaging (bits 6..5) and output rate (bits 4..2), with
// normal measurement bias.
func craValue(avg, odrHz int) byte {
	var cra byte
	switch avg {
	case 8:
		cra |= 0b11 << 5
	case 4:
		cra |= 0b10 << 5
	case 2:
		cra |= 0b01 << 5
	}
	switch odrHz {
	case 75:
		cra |= 0b110 << 2
	case 30:
		cra |= 0b101 << 2
	case 7:
		cra |= 0b011 << 2
	case 3:
		cra |= 0b010 << 2
	default:
		cra |= 0b100 << 2
	}
	return cra
}

func (d *Dev) modeValue() byte {
	if d.single {
		return 0x01
	}
	return 0x00
}

// ID returns the three identity bytes, expected "H43".
func (d *Dev) ID() (string, error) {
	buf := make([]byte, 3)
	if err := d.readRegBlock(regIDA, buf); err != nil {
		return "", fmt.Errorf("hmc5983: read ID: %w", err)
	}
	return string(buf), nil
}

// SenseRaw reads raw counts and returns them in X, Y, Z order.
func (d *Dev) SenseRaw() (x, y, z int16, err error) {
	if d.single {
		if err := d.writeReg(regMODE, 0x01); err != nil {
			return 0, 0, 0, fmt.Errorf("hmc5983: trigger: %w", err)
		}
		d.sleep(6 * time.Millisecond)
	}
	data := make([]byte, 6)
	if err := d.readRegBlock(regDATA, data); err != nil {
		return 0, 0, 0, fmt.Errorf("hmc5983: read data: %w", err)
	}
	x = int16(data[0])<<8 | int16(data[1])
	z = int16(data[2])<<8 | int16(data[3])
	y = int16(data[4])<<8 | int16(data[5])
	return x, y, z, nil
}

// Sense returns the field in µT.
func (d *Dev) Sense() (x, y, z float64, err error) {
	rx, ry, rz, err := d.SenseRaw()
	if err != nil {
		return 0, 0, 0, err
	}
	if rx == overflow || ry == overflow || rz == overflow {
		return 0, 0, 0, ErrOverflow
	}
	// 1 Gauss = 100 µT
	x = float64(rx) / d.lsbPerGaXY * 100
	y = float64(ry) / d.lsbPerGaXY * 100
	z = float64(rz) / d.lsbPerGaZ * 100
	return x, y, z, nil
}

func (d *Dev) writeReg(addr, val byte) error {
	return d.dev.Tx([]byte{addr, val}, nil)
}

func (d *Dev) readRegBlock(addr byte, out []byte) error {
	if len(out) == 0 {
		return errors.New("readRegBlock: empty buffer")
	}
	return d.dev.Tx([]byte{addr}, out)
}
