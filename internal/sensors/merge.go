// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/relabs-tech/compass_level/internal/imu"
)

type result struct {
	ev  imu.Event
	err error
}

type mergedSource struct {
	sources []imu.Source
	out     chan result

	closeOnce sync.Once
	done      chan struct{}
}

// Merge reads several sources at once, each on its own goroutine, so every
// sensor keeps its own rate and a stalled one does not hold up the rest.
// Events are delivered in arrival order. Member errors are passed to the
// caller and the member keeps being read; a member returning io.EOF is
// finished. Next returns io.EOF once every member is finished or the
// merged source is closed.
func Merge(sources ...imu.Source) imu.Source {
	if len(sources) == 1 {
		return sources[0]
	}
	m := &mergedSource{
		sources: sources,
		out:     make(chan result),
		done:    make(chan struct{}),
	}

	var wg sync.WaitGroup
	for _, s := range sources {
		wg.Add(1)
		go func(s imu.Source) {
			defer wg.Done()
			m.forward(s)
		}(s)
	}
	go func() {
		wg.Wait()
		close(m.out)
	}()
	return m
}

func (m *mergedSource) forward(s imu.Source) {
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		select {
		case m.out <- result{ev: ev, err: err}:
		case <-m.done:
			return
		}
	}
}

func (m *mergedSource) Next() (imu.Event, error) {
	select {
	case r, ok := <-m.out:
		if !ok || m.closed() {
			return imu.Event{}, io.EOF
		}
		return r.ev, r.err
	case <-m.done:
		return imu.Event{}, io.EOF
	}
}

func (m *mergedSource) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Close stops delivery and closes every member that implements io.Closer,
// which unblocks members waiting on their device.
func (m *mergedSource) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		close(m.done)
		for _, s := range m.sources {
			if c, ok := s.(io.Closer); ok {
				if err := c.Close(); err != nil {
					log.Printf("sensors: close: %v", err)
					errs = append(errs, err)
				}
			}
		}
	})
	return errors.Join(errs...)
}
