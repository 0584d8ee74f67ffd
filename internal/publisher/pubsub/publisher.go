// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New creates a Publisher for the provided topic. The caller keeps ownership
// of the topic's client.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Dial opens a client for projectID and publishes to topicName. Close releases
// both.
func Dial(ctx context.Context, projectID, topicName string) (*Publisher, error) {
	if projectID == "" || topicName == "" {
		return nil, errors.New("pubsub project id and topic name are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	return &Publisher{client: client, topic: client.Topic(topicName)}, nil
}

// Publish marshals the payload to JSON and publishes it with attrs, blocking
// until the server acknowledges the message.
func (p *Publisher) Publish(ctx context.Context, payload any, attrs map[string]string) (string, error) {
	if p.topic == nil {
		return "", errors.New("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and closes the client when Dial created it.
func (p *Publisher) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("pubsub client close failed: %w", err)
	}
	return nil
}
