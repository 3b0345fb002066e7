// Package events provides a fire-and-forget broadcast bus. Publishers never
// wait on subscribers: a full subscriber buffer drops the event.
package events

import (
	"sync"

	"parcel-sorter/internal/core/logger"

	"go.uber.org/zap"
)

// DropFunc is notified with the topic name whenever an event is dropped.
type DropFunc func(topic string)

// Bus broadcasts values of type T to every subscriber.
type Bus[T any] struct {
	topic  string
	buffer int
	onDrop DropFunc

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan T
	closed bool
}

// NewBus creates a bus for one topic. buffer is the per-subscriber channel capacity.
func NewBus[T any](topic string, buffer int, onDrop DropFunc) *Bus[T] {
	if buffer <= 0 {
		buffer = 1
	}
	return &Bus[T]{
		topic:  topic,
		buffer: buffer,
		onDrop: onDrop,
		subs:   make(map[int]chan T),
	}
}

// Subscribe registers a new subscriber. The returned cancel func unregisters
// it and closes the channel.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus[T]) Publish(ev T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.Named("events").Warn("Subscriber buffer full, dropping event",
				zap.String("topic", b.topic),
			)
			if b.onDrop != nil {
				b.onDrop(b.topic)
			}
		}
	}
}

// Close unregisters and closes every subscriber channel.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
