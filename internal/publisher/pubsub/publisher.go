// Package pubsub implements a Google Cloud Pub/Sub publisher for progress
// reports.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// Attribute keys attached to every published message.
const (
	AttrEventName = "event"
	AttrTopicHint = "topic"
	AttrSeq       = "seq"
	AttrEpoch     = "epoch"
)

// EventProgressUpdate is the event attribute value of report messages.
const EventProgressUpdate = "progress_update"

// Publisher wraps a Pub/Sub topic handle.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Dial connects to projectID and resolves topicID. The caller owns the returned
// client and must Close it after Stop-ing the publisher.
func Dial(ctx context.Context, projectID, topicID string) (*Publisher, *pubsub.Client, error) {
	if projectID == "" || topicID == "" {
		return nil, nil, fmt.Errorf("pubsub project_id and topic_name are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return New(client.Topic(topicID)), client, nil
}

// Publish marshals the report to JSON and publishes it to the topic. The
// topic argument is recorded as an attribute; routing uses the wrapped topic.
// Seq and epoch ride along as attributes so subscribers can order reports
// without decoding the body.
func (p *Publisher) Publish(ctx context.Context, topic string, r progress.Report) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: Attributes(topic, r),
	}
	result := p.topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Attributes returns the message attributes attached to a report.
func Attributes(topic string, r progress.Report) map[string]string {
	attrs := map[string]string{
		AttrEventName: EventProgressUpdate,
		AttrTopicHint: topic,
		AttrSeq:       strconv.FormatUint(r.Seq, 10),
	}
	if r.Epoch != "" {
		attrs[AttrEpoch] = r.Epoch
	}
	return attrs
}

// Stop flushes pending messages and releases the topic's goroutines.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
