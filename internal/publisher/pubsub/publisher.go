// Package pubsub publishes import notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
)

// Publisher sends import record and status messages to a single Pub/Sub
// topic. A pubsub/v2 publisher client is bound to one topic, so the topic is
// fixed at construction and publish calls naming a different one fail loudly
// rather than landing on the wrong topic.
type Publisher struct {
	publisher *pubsub.Publisher
	topic     string
}

// New wraps the topic-bound publisher client. topic is the name the client
// was created for; it is used to verify publish calls.
func New(publisher *pubsub.Publisher, topic string) *Publisher {
	return &Publisher{publisher: publisher, topic: topic}
}

// Publish marshals the payload to JSON and publishes it. An empty topic
// means "the bound topic"; any other mismatch is an error.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic != "" && topic != p.topic {
		return "", fmt.Errorf("publisher is bound to topic %q, cannot publish to %q", p.topic, topic)
	}
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data}
	msg.Attributes = make(map[string]string)
	otel.GetTextMapPropagator().Inject(ctx, &attributeCarrier{attrs: msg.Attributes})

	result := p.publisher.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish import message: %w", err)
	}
	return id, nil
}

// attributeCarrier exposes Pub/Sub message attributes as a
// propagation.TextMapCarrier so trace context travels with each import
// notification.
type attributeCarrier struct {
	attrs map[string]string
}

func (c *attributeCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *attributeCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
