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

// RunConsoleMQTT prints the orientation published by a compass elsewhere
// on the network.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("console: mqtt connect: %w", token.Error())
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	console := display.NewThrottle(display.NewConsole(nil), cfg.ConsoleInterval())
	if err := subscribeOrientation(client, cfg.TopicOrientation, console); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	log.Printf("console: subscribed to %s", cfg.TopicOrientation)

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
