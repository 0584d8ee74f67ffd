package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/progress-aggregator/internal/progress"
)

// Publisher publishes a JSON-encodable payload with message attributes and
// returns the server-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, payload any, attrs map[string]string) (string, error)
}

// Message is the JSON body published for every tracker event.
type Message struct {
	TrackerID     string    `json:"tracker_id"`
	TS            time.Time `json:"ts"`
	Stage         string    `json:"stage"`
	ContributorID string    `json:"contributor_id,omitempty"`
	Name          string    `json:"name,omitempty"`
	Message       string    `json:"message,omitempty"`
	Position      int       `json:"position"`
	Total         int       `json:"total"`
	Ratio         float64   `json:"ratio"`
	EstimateMS    *int64    `json:"estimate_ms,omitempty"`
}

// NewMessage converts evt to its published form.
func NewMessage(evt progress.Event) Message {
	msg := Message{
		TrackerID:     evt.TrackerUUID().String(),
		TS:            evt.TS,
		Stage:         string(evt.Stage),
		ContributorID: evt.ContributorID,
		Name:          evt.Name,
		Message:       evt.Message,
		Position:      evt.Position,
		Total:         evt.Total,
		Ratio:         evt.Ratio(),
	}
	switch evt.Stage {
	case progress.StageTrackerStart, progress.StageTrackerDelay:
		ms := evt.Estimate.Milliseconds()
		msg.EstimateMS = &ms
	}
	return msg
}

// PubSubSink publishes tracker events to a topic. Contributor events are
// skipped unless enabled since trackers already carry the aggregate position.
type PubSubSink struct {
	publisher    Publisher
	contributors bool
}

// NewPubSubSink builds a sink publishing through p. When includeContributors
// is set, contributor events are published too.
func NewPubSubSink(p Publisher, includeContributors bool) *PubSubSink {
	return &PubSubSink{publisher: p, contributors: includeContributors}
}

// Consume publishes each event in order and stops at the first failure.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage.IsContributor() && !s.contributors {
			continue
		}
		attrs := map[string]string{
			"tracker_id": evt.TrackerUUID().String(),
			"stage":      string(evt.Stage),
		}
		if _, err := s.publisher.Publish(ctx, NewMessage(evt), attrs); err != nil {
			return fmt.Errorf("publish %s: %w", evt.Stage, err)
		}
	}
	return nil
}

// Close implements the Sink interface; the publisher's owner closes it.
func (s *PubSubSink) Close(context.Context) error {
	return nil
}
