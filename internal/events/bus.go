// Package events carries engine happenings to in-process observers,
// primarily the websocket state stream.
package events

import (
	"sync"
	"time"
)

// Message is one published event with its topic and payload.
type Message struct {
	Type    Event `json:"type"`
	Ts      int64 `json:"ts"`
	Payload any   `json:"payload,omitempty"`
}

// Bus is a lightweight single-firehose broker: every subscriber receives
// every published message. Publishing never blocks; slow subscribers
// lose messages rather than stalling the engine.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Message
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener and returns its channel plus an
// unsubscribe function that also closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, buffer)
	b.subs = append(b.subs, ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.subs {
			if c == ch {
				close(c)
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fans the payload out to all subscribers without blocking.
func (b *Bus) Publish(e Event, payload any) {
	msg := Message{Type: e, Ts: time.Now().Unix(), Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
}
