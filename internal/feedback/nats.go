package feedback

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/internal/nats"
	"github.com/capitalize-ai/multichat/pkg/logger"
)

// NATSSink publishes feedback to the JetStream feedback stream.
type NATSSink struct {
	stream *nats.StreamManager
	logger *logger.Logger
}

// NewNATSSink creates a sink over stream.
func NewNATSSink(stream *nats.StreamManager, log *logger.Logger) *NATSSink {
	return &NATSSink{stream: stream, logger: log.Named("feedback")}
}

// Submit publishes fb.
func (s *NATSSink) Submit(ctx context.Context, fb model.FeedbackData) error {
	seq, err := s.stream.PublishFeedback(ctx, fb)
	if err != nil {
		return err
	}
	s.logger.Debug("feedback published",
		zap.String("session_id", fb.SessionID),
		zap.Uint64("sequence", seq),
	)
	return nil
}
