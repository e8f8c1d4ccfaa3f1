package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/multichat/internal/model"
)

type recordingPublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.subject = subject
	p.data = data
	return &jetstream.PubAck{Stream: StreamName, Sequence: 42}, nil
}

func TestPublishFeedback(t *testing.T) {
	pub := &recordingPublisher{}
	m := NewPublisherStream(pub)

	seq, err := m.PublishFeedback(context.Background(), model.FeedbackData{
		SessionID:  "s1",
		Key:        3,
		Feedback:   model.FeedbackPositive,
		Prompt:     "hi",
		Completion: "hello",
		Model:      "claude",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)
	assert.Equal(t, "feedback.s1", pub.subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, "s1", got["sessionId"])
	assert.Equal(t, float64(3), got["key"])
	assert.Equal(t, float64(1), got["feedback"])
}

func TestPublishFeedbackError(t *testing.T) {
	m := NewPublisherStream(&recordingPublisher{err: errors.New("no responders")})

	_, err := m.PublishFeedback(context.Background(), model.FeedbackData{SessionID: "s1"})
	assert.ErrorContains(t, err, "failed to publish feedback")
}

func TestEnsureStreamWithoutClient(t *testing.T) {
	m := NewPublisherStream(&recordingPublisher{})
	assert.Error(t, m.EnsureStream(context.Background()))
}
