package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/multichat/internal/model"
)

const (
	// StreamName is the name of the feedback stream.
	StreamName = "FEEDBACK"

	// SubjectPrefix is the prefix for all feedback subjects.
	SubjectPrefix = "feedback"
)

// Publisher is the subset of JetStream used to write feedback.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// StreamManager handles the feedback stream.
type StreamManager struct {
	client *Client
	pub    Publisher
}

// NewStreamManager creates a stream manager over client.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client, pub: client.JetStream()}
}

// NewPublisherStream creates a stream manager that only publishes through pub.
// EnsureStream is unavailable on it.
func NewPublisherStream(pub Publisher) *StreamManager {
	return &StreamManager{pub: pub}
}

// EnsureStream creates the feedback stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	if m.client == nil {
		return errors.New("stream manager has no client")
	}
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		Description: "User ratings of assistant messages",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// FeedbackSubject returns the subject a session's feedback is published on.
func FeedbackSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, sessionID)
}

// PublishFeedback publishes one feedback record and returns its stream sequence.
func (m *StreamManager) PublishFeedback(ctx context.Context, fb model.FeedbackData) (uint64, error) {
	data, err := json.Marshal(fb)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal feedback: %w", err)
	}

	ack, err := m.pub.Publish(ctx, FeedbackSubject(fb.SessionID), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish feedback: %w", err)
	}
	return ack.Sequence, nil
}
