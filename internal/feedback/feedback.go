// Package feedback turns ratings of rendered assistant messages into
// feedback records and writes them to a sink.
package feedback

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/pkg/logger"
)

// Map builds the feedback record for a rating of item, displayed at row key.
// It returns false when the item carries no session correlation.
func Map(rating, key int, item model.HistoryItem) (model.FeedbackData, bool) {
	sessionID := item.StringMeta("sessionId")
	if sessionID == "" {
		return model.FeedbackData{}, false
	}
	return model.FeedbackData{
		SessionID:  sessionID,
		Key:        key,
		Feedback:   rating,
		Prompt:     item.Prompt(),
		Completion: item.Content,
		Model:      item.StringMeta("modelId"),
	}, true
}

// Sink accepts feedback records. Callers do not surface its errors.
type Sink interface {
	Submit(ctx context.Context, fb model.FeedbackData) error
}

// LogSink writes feedback to the log. Used when no broker is configured.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log.Named("feedback")}
}

// Submit logs fb.
func (s *LogSink) Submit(_ context.Context, fb model.FeedbackData) error {
	s.logger.Info("feedback",
		zap.String("session_id", fb.SessionID),
		zap.Int("key", fb.Key),
		zap.Int("feedback", fb.Feedback),
		zap.String("model", fb.Model),
	)
	return nil
}
