// Package pubsub publishes run summaries to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Publisher sends JSON messages to Pub/Sub topics. Topic handles are
// cached per topic name.
type Publisher struct {
	client *pubsub.Client
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New wraps an existing Pub/Sub client.
func New(client *pubsub.Client, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client: client,
		logger: logger,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Publish serializes the payload to JSON and sends it, blocking until
// the broker acknowledges.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	result := p.topic(topic).Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("summary published",
		zap.String("topic", topic),
		zap.String("message_id", id),
	)
	return id, nil
}

// Close flushes cached topics and closes the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}

func (p *Publisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}
