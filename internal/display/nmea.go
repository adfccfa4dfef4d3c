// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"fmt"
	"io"
	"log"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/compass_level/internal/orientation"
)

// NMEA writes the magnetic heading as HDM sentences, the format
// autopilots and chart plotters read from a fluxgate compass.
type NMEA struct {
	w io.Writer
}

func NewNMEA(w io.Writer) *NMEA {
	return &NMEA{w: w}
}

// OpenNMEA opens the serial port the sentences are written to.
func OpenNMEA(portName string, baud int) (*NMEA, io.Closer, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("nmea: open %s: %w", portName, err)
	}
	log.Printf("nmea: serial port opened on %s at %d baud", portName, baud)
	return NewNMEA(port), port, nil
}

// Show writes one sentence. Nothing is written until a heading exists.
func (n *NMEA) Show(s orientation.State) error {
	if !s.HeadingValid {
		return nil
	}
	_, err := io.WriteString(n.w, HDMSentence(s.HeadingDeg))
	return err
}

// HDMSentence formats a magnetic heading as a checksummed
// $HCHDM sentence terminated by CRLF.
func HDMSentence(headingDeg float64) string {
	body := fmt.Sprintf("HCHDM,%.1f,M", headingDeg)
	return "$" + body + "*" + nmea.Checksum(body) + "\r\n"
}
