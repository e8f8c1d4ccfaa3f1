// Package accumulator merges streamed response frames into a session's
// in-flight assistant entry.
package accumulator

import (
	"sort"

	"github.com/capitalize-ai/multichat/internal/model"
)

// Result describes what a merge did.
type Result int

const (
	// NoOp means the frame did not touch the history.
	NoOp Result = iota
	// Merged means the in-flight entry was updated.
	Merged
	// Finalized means the entry was updated and released.
	Finalized
)

func (r Result) String() string {
	switch r {
	case Merged:
		return "merged"
	case Finalized:
		return "finalized"
	default:
		return "noop"
	}
}

// Scratch holds per-session accumulation state between frames of one turn.
// Tokens are keyed by run id; metadata keys accumulate until committed.
type Scratch struct {
	turn    uint64
	started bool
	runs    map[string][]model.Token
	lastRun string
	meta    model.Metadata
}

// NewScratch returns empty scratch state.
func NewScratch() *Scratch {
	return &Scratch{}
}

func (s *Scratch) bind(turn uint64) {
	if s.started && s.turn == turn {
		return
	}
	s.turn = turn
	s.started = true
	s.runs = make(map[string][]model.Token)
	s.lastRun = ""
	s.meta = model.Metadata{}
}

func (s *Scratch) addToken(tok model.Token) {
	s.runs[tok.RunID] = append(s.runs[tok.RunID], tok)
	s.lastRun = tok.RunID
}

// tokens returns the latest run's tokens ordered by sequence number. Equal
// sequence numbers keep arrival order.
func (s *Scratch) tokens() []model.Token {
	run := s.runs[s.lastRun]
	out := make([]model.Token, len(run))
	copy(out, run)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}

// Merge applies resp to the in-flight entry of session. It never touches other
// sessions, never reorders history and never appends entries: with no
// in-flight entry the frame is ignored.
func Merge(sessionID string, session *model.ChatSession, resp *model.MessageResponse, scratch *Scratch) Result {
	if session == nil || resp == nil || session.ID != sessionID {
		return NoOp
	}
	if resp.Data.SessionID != "" && resp.Data.SessionID != sessionID {
		return NoOp
	}

	switch resp.Action {
	case model.ActionLLMNewToken, model.ActionFinalResponse, model.ActionError:
	default:
		return NoOp
	}

	item, _, ok := session.InFlight()
	if !ok {
		return NoOp
	}
	scratch.bind(session.Turn())

	if tok := resp.Data.Token; tok != nil {
		scratch.addToken(*tok)
	}
	for k, v := range resp.Data.Metadata {
		scratch.meta[k] = v
	}

	tokens := scratch.tokens()
	item.Tokens = tokens
	if len(scratch.meta) > 0 {
		merged := item.Metadata.Clone()
		for k, v := range scratch.meta {
			merged[k] = v
		}
		item.Metadata = merged
	}

	switch {
	case resp.Data.Content != nil:
		item.Content = *resp.Data.Content
	case len(tokens) > 0:
		item.Content = model.JoinTokens(tokens)
	}

	if resp.Action == model.ActionFinalResponse {
		session.EndTurn()
		return Finalized
	}
	return Merged
}
