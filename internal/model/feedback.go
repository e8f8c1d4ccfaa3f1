package model

// Feedback ratings.
const (
	FeedbackNegative = 0
	FeedbackPositive = 1
)

// FeedbackData is a user rating of one rendered assistant message.
type FeedbackData struct {
	SessionID  string `json:"sessionId"`
	Key        int    `json:"key"`
	Feedback   int    `json:"feedback"`
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
	Model      string `json:"model"`
}
