// Package notify announces finished capture runs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/socialcards/internal/cards"
)

// Notifier publishes a run report somewhere outside the process.
type Notifier interface {
	Notify(ctx context.Context, msg ReportMessage) (string, error)
	Close() error
}

// ReportMessage is the JSON payload describing one capture run.
type ReportMessage struct {
	RunID       string    `json:"run_id"`
	Summary     string    `json:"summary"`
	Skipped     bool      `json:"skipped"`
	Planned     int       `json:"planned"`
	Attempted   int       `json:"attempted"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	FailedPaths []string  `json:"failed_paths,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// NewReportMessage builds the payload for report.
func NewReportMessage(report cards.RunReport, finishedAt time.Time) ReportMessage {
	return ReportMessage{
		RunID:       report.RunID,
		Summary:     report.Summary(),
		Skipped:     report.Skipped,
		Planned:     report.Planned,
		Attempted:   report.Attempted,
		Succeeded:   report.Succeeded,
		Failed:      report.Failed,
		FailedPaths: append([]string(nil), report.FailedPaths...),
		FinishedAt:  finishedAt.UTC(),
	}
}

// PubSub publishes reports to a Google Cloud Pub/Sub topic.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	owned  bool
}

// NewPubSub connects to projectID and checks that topicID exists.
func NewPubSub(ctx context.Context, projectID, topicID string) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil || !exists {
		_ = client.Close()
		if err == nil {
			err = fmt.Errorf("topic does not exist")
		}
		return nil, fmt.Errorf("failed to get pubsub topic '%s': %w", topicID, err)
	}
	return &PubSub{client: client, topic: topic, owned: true}, nil
}

// NewPubSubWithTopic wraps an existing topic. The caller keeps ownership of its client.
func NewPubSubWithTopic(topic *pubsub.Topic) *PubSub {
	return &PubSub{topic: topic}
}

// Notify publishes msg as JSON and waits for the server ID.
func (p *PubSub) Notify(ctx context.Context, msg ReportMessage) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": msg.RunID,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish report: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and closes an owned client.
func (p *PubSub) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.owned && p.client != nil {
		return p.client.Close()
	}
	return nil
}

// Memory records reports in process.
type Memory struct {
	mu       sync.RWMutex
	messages []ReportMessage
}

// NewMemory returns an empty Memory notifier.
func NewMemory() *Memory {
	return &Memory{}
}

// Notify records msg and returns a pseudo ID.
func (m *Memory) Notify(_ context.Context, msg ReportMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return fmt.Sprintf("memory-%d", len(m.messages)), nil
}

// Messages returns a copy of the recorded reports.
func (m *Memory) Messages() []ReportMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ReportMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Nop discards every report.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, ReportMessage) (string, error) { return "", nil }

// Close does nothing.
func (Nop) Close() error { return nil }
