// Package publisher defines the run-summary publishing contract.
package publisher

import "context"

// Publisher delivers a JSON-serializable payload to a named topic and
// returns the broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Noop discards messages; used when publishing is disabled.
type Noop struct{}

// Publish drops the payload.
func (Noop) Publish(context.Context, string, any) (string, error) { return "", nil }
