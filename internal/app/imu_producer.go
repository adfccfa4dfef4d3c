// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/display"
	"github.com/relabs-tech/compass_level/internal/imu"
	"github.com/relabs-tech/compass_level/internal/sensors"
)

// RunIMUProducer publishes MPU-9250 acceleration and angular velocity
// events to the sensor topic, for a compass running with SENSOR_SOURCE=mqtt.
func RunIMUProducer() error {
	cfg := config.Get()
	src, err := sensors.NewIMUSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource(src)
	return runProducer(cfg, "imu", src)
}

// closeSource releases src if it holds a device or subscription.
func closeSource(src imu.Source) {
	c, ok := src.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Printf("producer: close source: %v", err)
	}
}

func runProducer(cfg *config.Config, name string, src imu.Source) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer + "-" + name)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("%s producer: mqtt connect: %w", name, token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("%s producer: connected to MQTT broker at %s, publishing to %s", name, cfg.MQTTBroker, cfg.TopicSensorEvents)

	ctx, stop := signalContext()
	defer stop()
	n, err := publishEvents(ctx, src, client, cfg.TopicSensorEvents)
	log.Printf("%s producer: published %d events", name, n)
	return err
}

// publishEvents forwards events from src as JSON until the source is
// exhausted or ctx is done. Read errors are logged and skipped.
func publishEvents(ctx context.Context, src imu.Source, pub display.Publisher, topic string) (int, error) {
	n := 0
	for ctx.Err() == nil {
		ev, err := src.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			log.Printf("producer: read error: %v", err)
			continue
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return n, fmt.Errorf("producer: marshal: %w", err)
		}
		token := pub.Publish(topic, 0, false, b)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("producer: publish error: %v", err)
			continue
		}
		n++
	}
	return n, nil
}

// RunMockProducer publishes mock sensor events, to exercise the MQTT path
// without hardware.
func RunMockProducer() error {
	cfg := config.Get()
	return runProducer(cfg, "mock", sensors.NewMockSource(cfg.SampleInterval()))
}
