// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/compass_level/internal/imu"
)

// Trace is a recorded sequence of sensor events.
//
//	name: desk-rotation
//	interval: 20ms
//	events:
//	  - kind: acceleration
//	    values: {x: 0, y: 0, z: 9.81}
//	    accuracy: High
type Trace struct {
	Name     string        `yaml:"name"`
	Interval time.Duration `yaml:"interval"`
	Events   []imu.Event   `yaml:"events"`
}

// LoadReplay reads a YAML trace file.
func LoadReplay(path string) (Trace, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Trace{}, err
	}
	return ParseTrace(b)
}

// ParseTrace decodes and validates a YAML trace.
func ParseTrace(b []byte) (Trace, error) {
	var tr Trace
	if err := yaml.Unmarshal(b, &tr); err != nil {
		return Trace{}, fmt.Errorf("replay: %w", err)
	}
	if len(tr.Events) == 0 {
		return Trace{}, fmt.Errorf("replay: trace %q has no events", tr.Name)
	}
	for i, ev := range tr.Events {
		if err := ev.Validate(); err != nil {
			return Trace{}, fmt.Errorf("replay: event %d: %w", i, err)
		}
	}
	if tr.Interval < 0 {
		return Trace{}, fmt.Errorf("replay: interval must be >= 0")
	}
	return tr, nil
}

type replaySource struct {
	trace Trace
	loop  bool
	pos   int
	sleep func(time.Duration)
	now   func() time.Time
}

// NewReplaySource plays a trace back, waiting trace.Interval between
// events. With loop set it starts over at the end, otherwise Next returns
// io.EOF. Events without a timestamp are stamped when delivered.
func NewReplaySource(trace Trace, loop bool) imu.Source {
	return &replaySource{
		trace: trace,
		loop:  loop,
		sleep: time.Sleep,
		now:   time.Now,
	}
}

func (r *replaySource) Next() (imu.Event, error) {
	if r.pos >= len(r.trace.Events) {
		if !r.loop || len(r.trace.Events) == 0 {
			return imu.Event{}, io.EOF
		}
		r.pos = 0
	}
	if r.pos > 0 && r.trace.Interval > 0 {
		r.sleep(r.trace.Interval)
	}
	ev := r.trace.Events[r.pos]
	r.pos++
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	return ev, nil
}
