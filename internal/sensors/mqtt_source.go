// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/compass_level/internal/imu"
)

// Subscriber is the part of an MQTT client the source needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MQTTSource delivers sensor events published as JSON by a remote
// producer. Messages arrive on the client's goroutine and are handed to
// Next through a buffered channel.
type MQTTSource struct {
	client Subscriber
	topic  string
	events chan imu.Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewMQTTSource subscribes to topic and returns the source.
func NewMQTTSource(client Subscriber, topic string, buffer int) (*MQTTSource, error) {
	if buffer <= 0 {
		buffer = 64
	}
	s := &MQTTSource{
		client: client,
		topic:  topic,
		events: make(chan imu.Event, buffer),
		done:   make(chan struct{}),
	}

	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt source: subscribe %s: %w", topic, err)
	}
	log.Printf("mqtt source: subscribed to %s", topic)
	return s, nil
}

// handle decodes one payload. Invalid payloads are logged and dropped, as
// are events arriving while the buffer is full.
func (s *MQTTSource) handle(payload []byte) {
	var ev imu.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Printf("mqtt source: unmarshal error: %v", err)
		return
	}
	if err := ev.Validate(); err != nil {
		log.Printf("mqtt source: %v", err)
		return
	}
	select {
	case <-s.done:
	case s.events <- ev:
	default:
		log.Printf("mqtt source: buffer full, dropping %s event", ev.Kind)
	}
}

// Next blocks until an event arrives or the source is closed.
func (s *MQTTSource) Next() (imu.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		return imu.Event{}, io.EOF
	}
}

// Close unsubscribes and unblocks Next.
func (s *MQTTSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		token := s.client.Unsubscribe(s.topic)
		token.Wait()
		err = token.Error()
	})
	return err
}
