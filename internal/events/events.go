// Package events publishes video lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Type names a lifecycle transition.
type Type string

const (
	TypeUploaded  Type = "video.uploaded"
	TypeCompleted Type = "video.completed"
	TypeFailed    Type = "video.failed"
)

// Event is emitted whenever a video asset is accepted or reaches a terminal
// status.
type Event struct {
	Type       Type              `json:"type"`
	VideoID    string            `json:"video_id"`
	UploaderID string            `json:"uploader_id,omitempty"`
	Title      string            `json:"title,omitempty"`
	Status     string            `json:"status"`
	VideoURL   string            `json:"video_url,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Sender is the transport a KafkaPublisher writes to. *kafka.Producer
// satisfies it.
type Sender interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
}

// KafkaPublisher encodes events as JSON keyed by video id.
type KafkaPublisher struct {
	sender Sender
}

func NewKafkaPublisher(sender Sender) *KafkaPublisher {
	return &KafkaPublisher{sender: sender}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	headers := map[string]string{
		"video_id":   event.VideoID,
		"event_type": string(event.Type),
	}
	if err := p.sender.Publish(ctx, []byte(event.VideoID), payload, headers); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Notify publishes ev and logs a failure instead of returning it. Lifecycle
// notifications never change the outcome of the operation that emits them.
func Notify(ctx context.Context, pub Publisher, logger *zap.Logger, ev Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		logger.Warn("publish event failed",
			zap.String("event_type", string(ev.Type)),
			zap.String("video_id", ev.VideoID),
			zap.Error(err),
		)
	}
}
