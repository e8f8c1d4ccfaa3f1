package model

import (
	"strings"
)

// MessageType is the author of a history entry.
type MessageType string

const (
	MessageTypeHuman MessageType = "human"
	MessageTypeAI    MessageType = "ai"
)

// Metadata is the free-form record merged into an entry by inbound frames.
type Metadata map[string]any

// Clone returns a shallow copy of the top-level keys.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Token is one streamed fragment of an assistant turn.
type Token struct {
	RunID          string `json:"runId,omitempty"`
	SequenceNumber int    `json:"sequenceNumber"`
	Value          string `json:"value"`
}

// HistoryItem is one turn in a session's history.
type HistoryItem struct {
	Type     MessageType `json:"type"`
	Content  string      `json:"content"`
	Metadata Metadata    `json:"metadata"`
	Tokens   []Token     `json:"tokens,omitempty"`
}

// Placeholder is the synthetic empty AI entry used to pad aligned rows.
func Placeholder() HistoryItem {
	return HistoryItem{Type: MessageTypeAI, Content: "", Metadata: Metadata{}}
}

// Clone returns a copy that shares nothing mutable with the original.
func (h HistoryItem) Clone() HistoryItem {
	out := h
	out.Metadata = h.Metadata.Clone()
	if h.Tokens != nil {
		out.Tokens = append([]Token(nil), h.Tokens...)
	}
	return out
}

// Prompt returns the first echoed prompt (metadata.prompts[0][0]) if present.
func (h HistoryItem) Prompt() string {
	prompts, ok := h.Metadata["prompts"].([]any)
	if !ok || len(prompts) == 0 {
		return ""
	}
	first, ok := prompts[0].([]any)
	if !ok || len(first) == 0 {
		return ""
	}
	s, _ := first[0].(string)
	return s
}

// StringMeta returns a string metadata value or "".
func (h HistoryItem) StringMeta(key string) string {
	v, _ := h.Metadata[key].(string)
	return v
}

// JoinTokens concatenates token values in slice order.
func JoinTokens(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Value)
	}
	return b.String()
}
