// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/compass_level/internal/display"
	"github.com/relabs-tech/compass_level/internal/orientation"
)

// subscriber is the part of an MQTT client used to follow a topic.
type subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// subscribeOrientation shows every state published on topic on sink.
func subscribeOrientation(client subscriber, topic string, sink display.Sink) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		showPayload(msg.Payload(), sink)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func showPayload(payload []byte, sink display.Sink) {
	var s orientation.State
	if err := json.Unmarshal(payload, &s); err != nil {
		log.Printf("orientation unmarshal error: %v", err)
		return
	}
	if err := sink.Show(s); err != nil {
		log.Printf("orientation sink error: %v", err)
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
