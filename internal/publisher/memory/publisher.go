// Package memory keeps published progress reports in process. It backs
// pubsub.backend "memory" for local development and doubles as a test fake.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// DefaultRetain bounds each topic's log when New is given no limit.
const DefaultRetain = 128

// Message is one recorded publish.
type Message struct {
	ID          string
	Topic       string
	Report      progress.Report
	PublishedAt time.Time
}

// Publisher records reports per topic, keeping the newest Retain of each.
type Publisher struct {
	retain int
	logger *zap.Logger

	mu     sync.RWMutex
	next   uint64
	topics map[string][]Message
	order  []string
}

// New returns a Publisher that keeps at most retain messages per topic.
func New(retain int, logger *zap.Logger) *Publisher {
	if retain <= 0 {
		retain = DefaultRetain
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{retain: retain, logger: logger, topics: make(map[string][]Message)}
}

// Publish appends the report to topic's log and returns its message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, r progress.Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}

	p.mu.Lock()
	p.next++
	msg := Message{
		ID:          fmt.Sprintf("memory-%d", p.next),
		Topic:       topic,
		Report:      r,
		PublishedAt: time.Now().UTC(),
	}
	log, seen := p.topics[topic]
	if !seen {
		p.order = append(p.order, topic)
	}
	log = append(log, msg)
	if over := len(log) - p.retain; over > 0 {
		log = append(log[:0:0], log[over:]...)
	}
	p.topics[topic] = log
	p.mu.Unlock()

	p.logger.Debug("report published",
		zap.String("topic", topic),
		zap.String("id", msg.ID),
		zap.Uint64("seq", r.Seq),
	)
	return msg.ID, nil
}

// Topic returns a copy of the retained messages for one topic, oldest first.
func (p *Publisher) Topic(name string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.topics[name]))
	copy(out, p.topics[name])
	return out
}

// Latest returns the newest message published to topic.
func (p *Publisher) Latest(topic string) (Message, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	log := p.topics[topic]
	if len(log) == 0 {
		return Message{}, false
	}
	return log[len(log)-1], true
}

// Messages returns every retained message, grouped by topic in the order
// topics were first published to.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Message
	for _, name := range p.order {
		out = append(out, p.topics[name]...)
	}
	return out
}
