// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "fmt"

// Accuracy is the confidence level a sensor reports for its readings.
// It is passed through to the display unchanged.
type Accuracy int

const (
	AccuracyUnknown Accuracy = iota
	AccuracyUnreliable
	AccuracyLow
	AccuracyMedium
	AccuracyHigh
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyUnreliable:
		return "Unreliable"
	case AccuracyLow:
		return "Low"
	case AccuracyMedium:
		return "Medium"
	case AccuracyHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// ParseAccuracy maps a label back to an Accuracy. The empty string is
// treated as Unknown.
func ParseAccuracy(s string) (Accuracy, error) {
	switch s {
	case "High":
		return AccuracyHigh, nil
	case "Medium":
		return AccuracyMedium, nil
	case "Low":
		return AccuracyLow, nil
	case "Unreliable":
		return AccuracyUnreliable, nil
	case "Unknown", "":
		return AccuracyUnknown, nil
	}
	return AccuracyUnknown, fmt.Errorf("unknown accuracy %q", s)
}

// MarshalText encodes the accuracy as its label, so JSON and YAML carry
// "High" rather than a number.
func (a Accuracy) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Accuracy) UnmarshalText(b []byte) error {
	v, err := ParseAccuracy(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
