// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/compass_level/internal/orientation"
)

// Publisher is the part of an MQTT client the sink publishes through.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes every state as retained JSON, so late subscribers get
// the current heading immediately.
type MQTT struct {
	client Publisher
	topic  string
}

func NewMQTT(client Publisher, topic string) *MQTT {
	return &MQTT{client: client, topic: topic}
}

func (m *MQTT) Show(s orientation.State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("mqtt sink: marshal: %w", err)
	}
	token := m.client.Publish(m.topic, 0, true, b)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt sink: publish %s: %w", m.topic, err)
	}
	return nil
}
