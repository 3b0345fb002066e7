// Package broker wraps the MQTT client shared by upstream routing, sensor
// ingress and completion notifications.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parcel-sorter/internal/core/config"
	"parcel-sorter/internal/core/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when publishing while the client is offline.
var ErrNotConnected = errors.New("mqtt client not connected")

// Handler receives the raw payload of a message.
type Handler func(payload []byte)

// Broker publishes and subscribes to topics.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler Handler) error
}

// Client is a Broker backed by paho.
type Client struct {
	client mqtt.Client
	qos    byte
}

// Connect opens a connection to the configured broker.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	log := logger.Named("mqtt")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("MQTT connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			log.Info("MQTT connected", zap.String("broker", cfg.BrokerURL))
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return NewClient(client), nil
}

// NewClient wraps an already configured paho client. Messages use QoS 1.
func NewClient(client mqtt.Client) *Client {
	return &Client{client: client, qos: 1}
}

// Publish sends payload and waits for the broker acknowledgement or ctx.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers handler for topic. Handlers run on the paho router goroutine.
func (c *Client) Subscribe(topic string, handler Handler) error {
	token := c.client.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects, allowing in-flight work a short grace period.
func (c *Client) Close() {
	c.client.Disconnect(250)
}
