package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/capitalize-ai/multichat/internal/model"
)

// MaxMessageLength bounds the text of one send.
const MaxMessageLength = 100000

// ValidateMessageText validates the text of a send.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("text cannot be empty")
	}
	if len(text) > MaxMessageLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateRating validates a feedback rating.
func ValidateRating(rating int) error {
	if rating != model.FeedbackNegative && rating != model.FeedbackPositive {
		return errors.New("feedback must be 0 or 1")
	}
	return nil
}

// ValidateConfiguration validates sampling parameters.
func ValidateConfiguration(cfg model.Configuration) error {
	if cfg.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return errors.New("temperature must be between 0 and 1")
	}
	if cfg.TopP < 0 || cfg.TopP > 1 {
		return errors.New("top_p must be between 0 and 1")
	}
	if cfg.Seed < 0 {
		return errors.New("seed cannot be negative")
	}
	return nil
}
