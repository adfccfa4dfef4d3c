// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/relabs-tech/compass_level/internal/display"
	"github.com/relabs-tech/compass_level/internal/imu"
	"github.com/relabs-tech/compass_level/internal/orientation"
)

const defaultErrorBackoff = 100 * time.Millisecond

// Pipeline moves events from a source through the estimator to the sinks.
// Run is the only writer of the estimator.
type Pipeline struct {
	Source    imu.Source
	Estimator *orientation.Estimator
	Sink      display.Sink
	Metrics   *Metrics

	// ErrorBackoff is the pause after a source error. Zero means 100ms.
	ErrorBackoff time.Duration
}

// Run processes events until the source is exhausted or ctx is done.
// Cancelling ctx closes the source if it is an io.Closer, which unblocks
// a pending Next.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.Estimator == nil {
		p.Estimator = orientation.NewEstimator()
	}
	backoff := p.ErrorBackoff
	if backoff <= 0 {
		backoff = defaultErrorBackoff
	}

	stop := make(chan struct{})
	defer close(stop)
	if c, ok := p.Source.(io.Closer); ok {
		go func() {
			select {
			case <-ctx.Done():
				if err := c.Close(); err != nil {
					log.Printf("pipeline: source close: %v", err)
				}
			case <-stop:
			}
		}()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		ev, err := p.Source.Next()
		if errors.Is(err, io.EOF) {
			log.Println("pipeline: source exhausted")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Printf("pipeline: source error: %v", err)
			p.Metrics.sourceError()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}

		state := p.handle(ev)
		if p.Sink == nil {
			continue
		}
		if err := p.Sink.Show(state); err != nil {
			log.Printf("pipeline: sink error: %v", err)
			p.Metrics.sinkError()
		}
	}
}

func (p *Pipeline) handle(ev imu.Event) orientation.State {
	p.Metrics.event(string(ev.Kind))
	if !ev.Kind.Valid() {
		log.Printf("pipeline: ignoring %q event", ev.Kind)
	}

	s, res := p.Estimator.Apply(ev)
	switch res {
	case orientation.HeadingUpdated:
		p.Metrics.heading(s.HeadingDeg)
	case orientation.HeadingRejected:
		p.Metrics.rotationFailure()
	}
	return s
}
