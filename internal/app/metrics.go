// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the pipeline does. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Events           *prometheus.CounterVec
	HeadingUpdates   prometheus.Counter
	RotationFailures prometheus.Counter
	SourceErrors     prometheus.Counter
	SinkErrors       prometheus.Counter
	Heading          prometheus.Gauge
}

// NewMetrics creates the pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compass_sensor_events_total",
			Help: "Sensor events received, by kind.",
		}, []string{"kind"}),
		HeadingUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compass_heading_updates_total",
			Help: "Successful heading recomputations.",
		}),
		RotationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compass_rotation_failures_total",
			Help: "Heading recomputations skipped because no rotation could be derived (free fall or degenerate field).",
		}),
		SourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compass_source_errors_total",
			Help: "Errors returned by the sensor source.",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compass_sink_errors_total",
			Help: "Errors returned by display sinks.",
		}),
		Heading: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "compass_heading_degrees",
			Help: "Current magnetic heading.",
		}),
	}
	reg.MustRegister(m.Events, m.HeadingUpdates, m.RotationFailures, m.SourceErrors, m.SinkErrors, m.Heading)
	return m
}

func (m *Metrics) event(kind string) {
	if m != nil {
		m.Events.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) heading(deg float64) {
	if m != nil {
		m.HeadingUpdates.Inc()
		m.Heading.Set(deg)
	}
}

func (m *Metrics) rotationFailure() {
	if m != nil {
		m.RotationFailures.Inc()
	}
}

func (m *Metrics) sourceError() {
	if m != nil {
		m.SourceErrors.Inc()
	}
}

func (m *Metrics) sinkError() {
	if m != nil {
		m.SinkErrors.Inc()
	}
}
