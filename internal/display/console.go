// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"fmt"
	"io"
	"os"

	"github.com/relabs-tech/compass_level/internal/orientation"
)

// Console prints the state as text, one block per update.
type Console struct {
	w io.Writer
}

// NewConsole writes to w, or to stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) Show(s orientation.State) error {
	_, err := io.WriteString(c.w, FormatState(s))
	return err
}

// FormatState renders the heading line followed by roll, pitch and the
// sensor accuracy. Before the first heading the heading line reads "--".
func FormatState(s orientation.State) string {
	heading := "--"
	if s.HeadingValid {
		heading = fmt.Sprintf("%.1f°", s.HeadingDeg)
	}
	return fmt.Sprintf(
		"Compass Heading: %s\nRoll: %.1f°\nPitch: %.1f°\nAccuracy: %s\n",
		heading, s.RollDeg, s.PitchDeg, s.Accuracy,
	)
}
