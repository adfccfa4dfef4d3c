// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/compass_level/internal/config"
	"github.com/relabs-tech/compass_level/internal/display"
)

// RunDisplay drives the OLED from the orientation topic, for a display
// wired to a different board than the sensors.
func RunDisplay() error {
	cfg := config.Get()

	oled, bus, err := display.OpenOLED(cfg.DisplayI2CBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("display: mqtt connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	sink := display.NewThrottle(oled, cfg.DisplayInterval())
	if err := subscribeOrientation(client, cfg.TopicOrientation, sink); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	log.Printf("display: subscribed to %s", cfg.TopicOrientation)

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()
	log.Println("display: shutting down")
	return nil
}
