// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/display"
	"github.com/relabs-tech/compass_level/internal/orientation"
	"github.com/relabs-tech/compass_level/internal/sensors"
)

// RunCompass is the all-in-one binary: it reads the configured sensor
// source, estimates heading and level and shows them on every enabled
// output until interrupted.
func RunCompass() error {
	cfg := config.Get()
	ctx, stop := signalContext()
	defer stop()

	var client mqtt.Client
	if cfg.SensorSource == config.SourceMQTT || cfg.MQTTPublishEnable {
		opts := mqtt.NewClientOptions().
			AddBroker(cfg.MQTTBroker).
			SetClientID(cfg.MQTTClientIDCompass)
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return fmt.Errorf("compass: mqtt connect: %w", token.Error())
		}
		defer client.Disconnect(250)
		log.Printf("compass: connected to MQTT broker at %s", cfg.MQTTBroker)
	}

	var sub sensors.Subscriber
	if client != nil {
		sub = client
	}
	src, err := sensors.Open(cfg, sub)
	if err != nil {
		return fmt.Errorf("compass: %w", err)
	}

	var pub display.Publisher
	if client != nil {
		pub = client
	}
	sinks, closers := buildSinks(cfg, pub)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	metrics := NewMetrics(prometheus.DefaultRegisterer)

	if cfg.WebEnable {
		hub := NewHub()
		sinks = append(sinks, hub)
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
			Handler: NewWebHandler(hub, cfg.WebStaticDir, nil),
		}
		go func() {
			if err := serveHTTP(ctx, srv); err != nil {
				log.Printf("compass: %v", err)
			}
		}()
	}

	p := &Pipeline{
		Source:    src,
		Estimator: orientation.NewEstimator(),
		Sink:      sinks,
		Metrics:   metrics,
	}
	log.Printf("compass: running with %s source and %d outputs", cfg.SensorSource, len(sinks))
	err = p.Run(ctx)
	log.Println("compass: shutting down")
	return err
}

// buildSinks opens every output enabled in cfg. Outputs whose hardware is
// missing are logged and left out. pub may be nil when MQTT publishing is
// disabled.
func buildSinks(cfg *config.Config, pub display.Publisher) (display.Multi, []io.Closer) {
	var (
		sinks   display.Multi
		closers []io.Closer
	)

	if cfg.ConsoleEnable {
		sinks = append(sinks, display.NewThrottle(display.NewConsole(nil), cfg.ConsoleInterval()))
	}

	if cfg.DisplayEnable {
		oled, closer, err := display.OpenOLED(cfg.DisplayI2CBus)
		if err != nil {
			log.Printf("compass: OLED not available: %v", err)
		} else {
			sinks = append(sinks, display.NewThrottle(oled, cfg.DisplayInterval()))
			closers = append(closers, closer)
		}
	}

	if cfg.MQTTPublishEnable && pub != nil {
		sinks = append(sinks, display.NewMQTT(pub, cfg.TopicOrientation))
	}

	if cfg.NMEAEnable {
		n, closer, err := display.OpenNMEA(cfg.NMEASerialPort, cfg.NMEABaudRate)
		if err != nil {
			log.Printf("compass: NMEA output not available: %v", err)
		} else {
			sinks = append(sinks, n)
			closers = append(closers, closer)
		}
	}

	return sinks, closers
}

// runPipeline is used by the single-purpose binaries.
func runPipeline(ctx context.Context, p *Pipeline) error {
	if err := p.Run(ctx); err != nil {
		return err
	}
	log.Println("shutting down")
	return nil
}
