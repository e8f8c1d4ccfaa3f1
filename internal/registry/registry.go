// Package registry owns the panel's chat sessions.
//
// The registry is not safe for concurrent use. It is owned by the
// orchestrator's event loop, which serializes every mutation.
package registry

import (
	"errors"

	"github.com/google/uuid"

	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/pkg/metrics"
)

// Panel width limits.
const (
	MinSessions = 2
	MaxSessions = 4
)

var (
	ErrPanelFull        = errors.New("panel already holds the maximum number of sessions")
	ErrPanelMinimum     = errors.New("panel already holds the minimum number of sessions")
	ErrHistoryNotEmpty  = errors.New("panel has message history")
	ErrSessionNotFound  = errors.New("session not found")
	ErrModelNotSelected = errors.New("model reference is empty")
)

// ChangeFunc is called after every mutation.
type ChangeFunc func()

// Registry holds between MinSessions and MaxSessions sessions once populated.
type Registry struct {
	sessions  []*model.ChatSession
	observers []ChangeFunc
	newID     func() string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// OnChange registers an observer.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.observers = append(r.observers, fn)
}

func (r *Registry) changed() {
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	running := 0
	for _, s := range r.sessions {
		if s.Running {
			running++
		}
	}
	metrics.SessionsRunning.Set(float64(running))

	for _, fn := range r.observers {
		fn()
	}
}

// Add creates a session with a fresh identifier and default configuration.
func (r *Registry) Add() (*model.ChatSession, error) {
	if len(r.sessions) >= MaxSessions {
		return nil, ErrPanelFull
	}
	s := model.NewChatSession(r.newID())
	r.sessions = append(r.sessions, s)
	r.changed()
	return s, nil
}

// Remove deletes a session. It refuses when the panel is at its minimum width
// or when any session has history.
func (r *Registry) Remove(id string) error {
	idx := r.index(id)
	if idx < 0 {
		return ErrSessionNotFound
	}
	if len(r.sessions) <= MinSessions {
		return ErrPanelMinimum
	}
	if r.HasHistory() {
		return ErrHistoryNotEmpty
	}
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	r.changed()
	return nil
}

// ClearAll empties every history and assigns each session a new identifier.
// It returns the new identifiers in panel order.
func (r *Registry) ClearAll() []string {
	ids := make([]string, len(r.sessions))
	for i, s := range r.sessions {
		s.Reset(r.newID())
		ids[i] = s.ID
	}
	r.changed()
	return ids
}

// Get returns the live session with id.
func (r *Registry) Get(id string) (*model.ChatSession, bool) {
	if idx := r.index(id); idx >= 0 {
		return r.sessions[idx], true
	}
	return nil, false
}

// Has reports whether id names a session in the panel.
func (r *Registry) Has(id string) bool {
	return r.index(id) >= 0
}

// Sessions returns the live sessions in panel order.
func (r *Registry) Sessions() []*model.ChatSession {
	return append([]*model.ChatSession(nil), r.sessions...)
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// HasHistory reports whether any session has at least one entry.
func (r *Registry) HasHistory() bool {
	for _, s := range r.sessions {
		if len(s.MessageHistory) > 0 {
			return true
		}
	}
	return false
}

// Update applies fn to the session with id and notifies observers.
func (r *Registry) Update(id string, fn func(*model.ChatSession)) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	fn(s)
	r.changed()
	return true
}

// SelectModel sets the model of a session. meta may be nil when the catalog
// has no record for ref.
func (r *Registry) SelectModel(id string, ref model.ModelRef, meta *model.Model) error {
	if ref.Provider == "" || ref.Name == "" {
		return ErrModelNotSelected
	}
	ok := r.Update(id, func(s *model.ChatSession) {
		s.Model = &ref
		s.ModelMetadata = meta
	})
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// SelectWorkspace sets or clears (nil) the workspace of a session.
func (r *Registry) SelectWorkspace(id string, ws *model.WorkspaceRef) error {
	if !r.Update(id, func(s *model.ChatSession) { s.Workspace = ws }) {
		return ErrSessionNotFound
	}
	return nil
}

// Configure replaces the configuration of a session.
func (r *Registry) Configure(id string, cfg model.Configuration) error {
	if !r.Update(id, func(s *model.ChatSession) { s.Configuration = cfg }) {
		return ErrSessionNotFound
	}
	return nil
}

// Reset drops every session. Used on unmount only.
func (r *Registry) Reset() {
	r.sessions = nil
	r.changed()
}

func (r *Registry) index(id string) int {
	for i, s := range r.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}
