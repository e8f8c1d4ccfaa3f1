// Package model defines data structures for the multi-session chat panel.
package model

import (
	"time"
)

// Configuration holds the sampling parameters and attachment placeholders of a session.
type Configuration struct {
	Streaming    bool     `json:"streaming"`
	MaxTokens    int      `json:"max_tokens"`
	Temperature  float64  `json:"temperature"`
	TopP         float64  `json:"top_p"`
	Seed         int      `json:"seed"`
	ShowMetadata bool     `json:"show_metadata"`
	Images       []string `json:"images"`
	Documents    []string `json:"documents"`
	Videos       []string `json:"videos"`
}

// DefaultConfiguration returns the configuration a new session starts with.
func DefaultConfiguration() Configuration {
	return Configuration{
		Streaming:   true,
		MaxTokens:   512,
		Temperature: 0.1,
		TopP:        0.9,
		Seed:        0,
		Images:      []string{},
		Documents:   []string{},
		Videos:      []string{},
	}
}

// ChatSession is one independently configured conversation slot.
type ChatSession struct {
	ID             string        `json:"id"`
	Model          *ModelRef     `json:"model,omitempty"`
	ModelMetadata  *Model        `json:"model_metadata,omitempty"`
	Workspace      *WorkspaceRef `json:"workspace,omitempty"`
	Configuration  Configuration `json:"configuration"`
	Loading        bool          `json:"loading"`
	Running        bool          `json:"running"`
	MessageHistory []HistoryItem `json:"message_history"`

	// RunStartedAt is set when a run request is dispatched.
	RunStartedAt time.Time `json:"-"`

	inFlight    int
	hasInFlight bool
	turn        uint64
}

// NewChatSession creates an idle session with default configuration and empty history.
func NewChatSession(id string) *ChatSession {
	return &ChatSession{
		ID:             id,
		Configuration:  DefaultConfiguration(),
		MessageHistory: []HistoryItem{},
	}
}

// BeginTurn appends the Human/AI placeholder pair for text and records the AI
// entry as the in-flight merge target. It returns the in-flight index.
func (s *ChatSession) BeginTurn(text string) int {
	s.MessageHistory = append(s.MessageHistory,
		HistoryItem{Type: MessageTypeHuman, Content: text, Metadata: Metadata{}},
		HistoryItem{Type: MessageTypeAI, Content: "", Metadata: Metadata{}},
	)
	s.inFlight = len(s.MessageHistory) - 1
	s.hasInFlight = true
	s.turn++
	return s.inFlight
}

// Turn identifies the most recent turn begun on this session.
func (s *ChatSession) Turn() uint64 {
	return s.turn
}

// InFlight returns the entry currently receiving streamed frames.
func (s *ChatSession) InFlight() (*HistoryItem, int, bool) {
	if !s.hasInFlight || s.inFlight < 0 || s.inFlight >= len(s.MessageHistory) {
		return nil, -1, false
	}
	item := &s.MessageHistory[s.inFlight]
	if item.Type != MessageTypeAI {
		return nil, -1, false
	}
	return item, s.inFlight, true
}

// EndTurn releases the in-flight target.
func (s *ChatSession) EndTurn() {
	s.inFlight = 0
	s.hasInFlight = false
}

// Reset empties the history under a new identifier.
func (s *ChatSession) Reset(newID string) {
	s.ID = newID
	s.MessageHistory = []HistoryItem{}
	s.Running = false
	s.RunStartedAt = time.Time{}
	s.EndTurn()
}

// Clone returns a deep copy safe to hand outside the event loop.
func (s *ChatSession) Clone() ChatSession {
	out := *s
	if s.Model != nil {
		ref := *s.Model
		out.Model = &ref
	}
	if s.ModelMetadata != nil {
		meta := s.ModelMetadata.Clone()
		out.ModelMetadata = &meta
	}
	if s.Workspace != nil {
		ws := *s.Workspace
		out.Workspace = &ws
	}
	out.Configuration.Images = append([]string{}, s.Configuration.Images...)
	out.Configuration.Documents = append([]string{}, s.Configuration.Documents...)
	out.Configuration.Videos = append([]string{}, s.Configuration.Videos...)
	out.MessageHistory = make([]HistoryItem, len(s.MessageHistory))
	for i, item := range s.MessageHistory {
		out.MessageHistory[i] = item.Clone()
	}
	return out
}
