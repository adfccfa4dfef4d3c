// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display contains the outputs the compass state is shown on:
// terminal, OLED, MQTT, NMEA serial and the web hub.
package display

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/compass_level/internal/orientation"
)

// Sink receives every new orientation state.
type Sink interface {
	Show(orientation.State) error
}

// Func adapts a plain function to a Sink.
type Func func(orientation.State) error

func (f Func) Show(s orientation.State) error { return f(s) }

// Multi shows a state on every sink and joins their errors.
type Multi []Sink

func (m Multi) Show(s orientation.State) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Show(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Throttle forwards at most one state per interval to the wrapped sink.
// The most recent state arriving in between is held back and shown once
// the interval has passed, so the sink always ends on the latest state.
type Throttle struct {
	Sink     Sink
	Interval time.Duration

	mu        sync.Mutex
	last      time.Time
	pending   *orientation.State
	scheduled bool

	now       func() time.Time
	afterFunc func(time.Duration, func())
}

// NewThrottle wraps sink so it is updated at most once per interval.
func NewThrottle(sink Sink, interval time.Duration) *Throttle {
	return &Throttle{
		Sink:     sink,
		Interval: interval,
		now:      time.Now,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

func (t *Throttle) Show(s orientation.State) error {
	t.mu.Lock()
	now := t.now()
	if wait := t.Interval - now.Sub(t.last); !t.last.IsZero() && wait > 0 {
		t.pending = &s
		if !t.scheduled {
			t.scheduled = true
			t.afterFunc(wait, t.flush)
		}
		t.mu.Unlock()
		return nil
	}
	t.last = now
	t.pending = nil
	t.mu.Unlock()
	return t.Sink.Show(s)
}

// flush shows the held-back state, if a newer one was not shown meanwhile.
func (t *Throttle) flush() {
	t.mu.Lock()
	t.scheduled = false
	s := t.pending
	t.pending = nil
	if s != nil {
		t.last = t.now()
	}
	t.mu.Unlock()
	if s == nil {
		return
	}
	if err := t.Sink.Show(*s); err != nil {
		log.Printf("display: deferred update: %v", err)
	}
}
