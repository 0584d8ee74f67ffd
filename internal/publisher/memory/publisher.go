// Package memory contains an in-memory publisher used when Pub/Sub is not
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	fail     error
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Payload    any
	Attributes map[string]string
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later Publish return err. A nil err restores success.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, payload any, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return "", p.fail
	}
	p.messages = append(p.messages, PublishedMessage{Payload: payload, Attributes: maps.Clone(attrs)})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close implements io.Closer; it performs no action.
func (p *Publisher) Close() error {
	return nil
}
