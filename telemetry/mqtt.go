// Package telemetry pushes derived-scalar snapshots to the wireless
// transport edge over MQTT. Publishing is best-effort: a slow or
// disconnected broker drops the snapshot instead of stalling the
// acquisition loop.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/5l1v3r1/homeicu/sched"
)

const (
	defaultTopic          = "homeicu/vitals"
	defaultPublishTimeout = 100 * time.Millisecond
	defaultConnectTimeout = 5 * time.Second
)

type Options struct {
	Broker         string
	ClientID       string
	Topic          string
	PublishTimeout time.Duration
}

// MQTTPublisher implements sched.Publisher over a paho MQTT client.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	log     *slog.Logger
}

// NewMQTT connects to the broker and returns a snapshot publisher. The
// client reconnects automatically after broker outages.
func NewMQTT(o Options, log *slog.Logger) (*MQTTPublisher, error) {
	if o.Topic == "" {
		o.Topic = defaultTopic
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultConnectTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect to %s failed: %w", o.Broker, token.Error())
	}
	return &MQTTPublisher{
		client:  client,
		topic:   o.Topic,
		timeout: o.PublishTimeout,
		log:     log,
	}, nil
}

// Publish sends one snapshot as JSON. It waits at most the publish
// timeout; an unacknowledged publish is dropped and reported as an error
// the caller may log and ignore.
func (p *MQTTPublisher) Publish(_ context.Context, snap sched.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot marshal failed: %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s timed out after %s", p.topic, p.timeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("publish to %s failed: %w", p.topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker, allowing a short drain for in-flight
// messages.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
