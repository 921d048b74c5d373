// Package eventbus fire-and-forget emits analytics events to Pub/Sub
// topics. Publish failures are logged only; the core's request path never
// blocks on or fails because of event-bus trouble.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// Topic names published by the query-time core.
const (
	TopicSearchEvents  = "search.events"
	TopicAskEvents     = "ask.events"
	TopicSearchFeedback = "search.feedback"
)

// Bus publishes JSON-encoded events to named Pub/Sub topics.
type Bus struct {
	client *pubsub.Client
	topics map[string]*pubsub.Topic
}

// New creates a Bus and resolves handles for the core's three topics.
// Topics are assumed to already exist (provisioning is out of scope).
func New(client *pubsub.Client) *Bus {
	b := &Bus{
		client: client,
		topics: make(map[string]*pubsub.Topic),
	}
	for _, name := range []string{TopicSearchEvents, TopicAskEvents, TopicSearchFeedback} {
		b.topics[name] = client.Topic(name)
	}
	return b
}

// SearchEvent is emitted once per completed /search request.
type SearchEvent struct {
	Query       string    `json:"query"`
	ResultCount int       `json:"resultCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// AskEvent is emitted once per completed /ask request.
type AskEvent struct {
	Query     string    `json:"query"`
	Abstained bool      `json:"abstained"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FeedbackEvent mirrors a persisted feedback record.
type FeedbackEvent struct {
	Query     string    `json:"query"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishSearch emits a SearchEvent to search.events without blocking the
// caller on publish confirmation.
func (b *Bus) PublishSearch(ctx context.Context, ev SearchEvent) {
	b.publish(ctx, TopicSearchEvents, ev)
}

// PublishAsk emits an AskEvent to ask.events.
func (b *Bus) PublishAsk(ctx context.Context, ev AskEvent) {
	b.publish(ctx, TopicAskEvents, ev)
}

// PublishFeedback emits a FeedbackEvent to search.feedback.
func (b *Bus) PublishFeedback(ctx context.Context, ev FeedbackEvent) {
	b.publish(ctx, TopicSearchFeedback, ev)
}

func (b *Bus) publish(ctx context.Context, topicName string, event any) {
	topic, ok := b.topics[topicName]
	if !ok {
		slog.Warn("eventbus.publish: unknown topic", "topic", topicName)
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("eventbus.publish: marshal failed", "topic", topicName, "error", err)
		return
	}

	result := topic.Publish(ctx, &pubsub.Message{Data: data})
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			slog.Warn("eventbus.publish: publish failed", "topic", topicName, "error", err)
		}
	}()
}

// Stop flushes and closes all topic handles.
func (b *Bus) Stop() {
	for _, topic := range b.topics {
		topic.Stop()
	}
}
