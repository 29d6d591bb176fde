// Package memory is an in-memory publisher used by tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one recorded publish call.
type Message struct {
	Topic   string
	Payload any
}

// Publisher records published payloads for later inspection. FailWith,
// when set, makes every Publish return that error instead.
type Publisher struct {
	FailWith error

	mu   sync.Mutex
	msgs []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a synthetic ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.FailWith != nil {
		return "", p.FailWith
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", len(p.msgs)), nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.msgs))
	copy(out, p.msgs)
	return out
}
