package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSub publishes completion events to a Google Cloud Pub/Sub topic.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSub connects to Pub/Sub and binds the topic.
func NewPubSub(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSub{
		client: client,
		topic:  client.Topic(topicID),
		logger: logger,
	}, nil
}

// BatchDone marshals the event to JSON and publishes it, blocking until the
// server acknowledges.
func (p *PubSub) BatchDone(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish completion event: %w", err)
	}

	p.logger.Debug("completion event published",
		zap.String("message_id", id),
		zap.String("source", event.Source),
		zap.Int("batch", event.Batch),
	)
	return nil
}

// Close stops the topic's publish goroutines and releases the client.
func (p *PubSub) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
