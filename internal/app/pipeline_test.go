// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/relabs-tech/compass_level/internal/display"
	"github.com/relabs-tech/compass_level/internal/imu"
	"github.com/relabs-tech/compass_level/internal/orientation"
	"github.com/relabs-tech/compass_level/internal/sensors"
)

const pipelineTrace = `
name: flat-east-then-drop
events:
  - kind: acceleration
    values: {x: 0, y: 0, z: 9.81}
    accuracy: High
  - kind: magnetic_field
    values: {x: -20, y: 0, z: -45}
    accuracy: High
  - kind: angular_velocity
    values: {x: 0, y: 1, z: 0.5}
    accuracy: Medium
  - kind: acceleration
    values: {x: 0, y: 0, z: 0}
    accuracy: Low
`

type recordingSink struct {
	mu     sync.Mutex
	states []orientation.State
	err    error
}

func (r *recordingSink) Show(s orientation.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
	return r.err
}

func newTestPipeline(t *testing.T, src imu.Source, sink display.Sink) (*Pipeline, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	return &Pipeline{
		Source:       src,
		Estimator:    orientation.NewEstimator(),
		Sink:         sink,
		Metrics:      m,
		ErrorBackoff: time.Millisecond,
	}, m
}

func TestPipelineReplay(t *testing.T) {
	tr, err := sensors.ParseTrace([]byte(pipelineTrace))
	if err != nil {
		t.Fatalf("ParseTrace: %v", err)
	}
	sink := &recordingSink{}
	p, m := newTestPipeline(t, sensors.NewReplaySource(tr, false), sink)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.states) != 4 {
		t.Fatalf("states=%d want=4", len(sink.states))
	}

	if sink.states[0].HeadingValid {
		t.Fatalf("heading valid before first magnetometer sample")
	}
	second := sink.states[1]
	if !second.HeadingValid || math.Abs(second.HeadingDeg-90) > 1e-9 {
		t.Fatalf("heading=%v valid=%v want=90", second.HeadingDeg, second.HeadingValid)
	}

	third := sink.states[2]
	if math.Abs(third.PitchDeg-57.29577951308232) > 1e-9 || math.Abs(third.RollDeg-28.64788975654116) > 1e-9 {
		t.Fatalf("roll=%v pitch=%v", third.RollDeg, third.PitchDeg)
	}
	if third.Accuracy != imu.AccuracyMedium {
		t.Fatalf("accuracy=%s want=Medium", third.Accuracy)
	}

	// free fall keeps the previous heading
	last := sink.states[3]
	if last.HeadingDeg != second.HeadingDeg || !last.HeadingValid {
		t.Fatalf("heading=%v want retained %v", last.HeadingDeg, second.HeadingDeg)
	}
	if last.Accuracy != imu.AccuracyLow {
		t.Fatalf("accuracy=%s want=Low", last.Accuracy)
	}

	if got := testutil.ToFloat64(m.Events.WithLabelValues("acceleration")); got != 2 {
		t.Fatalf("acceleration events=%v want=2", got)
	}
	if got := testutil.ToFloat64(m.HeadingUpdates); got != 1 {
		t.Fatalf("heading updates=%v want=1", got)
	}
	if got := testutil.ToFloat64(m.RotationFailures); got != 1 {
		t.Fatalf("rotation failures=%v want=1", got)
	}
	if got := testutil.ToFloat64(m.Heading); got != second.HeadingDeg {
		t.Fatalf("heading gauge=%v want=%v", got, second.HeadingDeg)
	}
}

type scriptedSource struct {
	steps []error
	i     int
}

func (s *scriptedSource) Next() (imu.Event, error) {
	if s.i >= len(s.steps) {
		return imu.Event{}, io.EOF
	}
	err := s.steps[s.i]
	s.i++
	if err != nil {
		return imu.Event{}, err
	}
	return imu.Event{Kind: imu.KindAngularVelocity, Values: imu.Vec3{Y: 0.1}}, nil
}

func TestPipelineSurvivesErrors(t *testing.T) {
	src := &scriptedSource{steps: []error{errors.New("spi"), nil, errors.New("spi"), nil}}
	sink := &recordingSink{err: errors.New("display unplugged")}
	p, m := newTestPipeline(t, src, sink)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.states) != 2 {
		t.Fatalf("states=%d want=2", len(sink.states))
	}
	if got := testutil.ToFloat64(m.SourceErrors); got != 2 {
		t.Fatalf("source errors=%v want=2", got)
	}
	if got := testutil.ToFloat64(m.SinkErrors); got != 2 {
		t.Fatalf("sink errors=%v want=2", got)
	}
}

type blockingSource struct {
	once   sync.Once
	closed chan struct{}
}

func (b *blockingSource) Next() (imu.Event, error) {
	<-b.closed
	return imu.Event{}, io.EOF
}

func (b *blockingSource) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func TestPipelineCancelClosesSource(t *testing.T) {
	src := &blockingSource{closed: make(chan struct{})}
	p, _ := newTestPipeline(t, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestPipelineWithoutMetrics(t *testing.T) {
	tr, err := sensors.ParseTrace([]byte(pipelineTrace))
	if err != nil {
		t.Fatalf("ParseTrace: %v", err)
	}
	p := &Pipeline{Source: sensors.NewReplaySource(tr, false)}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := p.Estimator.State(); !s.HeadingValid {
		t.Fatalf("state=%+v want valid heading", s)
	}
}
