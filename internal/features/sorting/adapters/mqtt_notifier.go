package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"parcel-sorter/internal/core/broker"
	"parcel-sorter/internal/features/sorting/domain"
)

// MQTTNotifier publishes completion notifications on a broker topic.
type MQTTNotifier struct {
	broker broker.Broker
	topic  string
}

// NewMQTTNotifier creates a new MQTTNotifier.
func NewMQTTNotifier(b broker.Broker, topic string) *MQTTNotifier {
	return &MQTTNotifier{broker: b, topic: topic}
}

// Notify publishes n as JSON.
func (m *MQTTNotifier) Notify(ctx context.Context, n domain.SortingCompletedNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := m.broker.Publish(ctx, m.topic, payload); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
