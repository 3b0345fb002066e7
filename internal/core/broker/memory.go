package broker

import (
	"context"
	"sync"
)

// Memory is an in-process Broker. Publish delivers synchronously to every
// handler subscribed to the exact topic.
type Memory struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	published map[string][][]byte
	err       error
}

// NewMemory creates an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{
		handlers:  make(map[string][]Handler),
		published: make(map[string][][]byte),
	}
}

// FailWith makes every later Publish return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Publish records the payload and hands it to the subscribers.
func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return err
	}
	m.published[topic] = append(m.published[topic], payload)
	handlers := append([]Handler(nil), m.handlers[topic]...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
	return nil
}

// Subscribe registers handler for topic.
func (m *Memory) Subscribe(topic string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = append(m.handlers[topic], handler)
	return nil
}

// Published returns a copy of the payloads sent to topic.
func (m *Memory) Published(topic string) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]byte(nil), m.published[topic]...)
}
