// Package handler exposes the mounted panel over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/multichat/internal/catalog"
	"github.com/capitalize-ai/multichat/internal/connection"
	"github.com/capitalize-ai/multichat/internal/middleware"
	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/internal/orchestrator"
	"github.com/capitalize-ai/multichat/internal/registry"
	"github.com/capitalize-ai/multichat/pkg/logger"
)

// Panel is the mounted panel. *orchestrator.MultiChat satisfies it.
type Panel interface {
	State() connection.ReadyState
	View() (orchestrator.View, error)
	Catalog() (*catalog.Catalog, error)
	Watch() (<-chan orchestrator.View, func(), error)
	SendMessage(ctx context.Context, text string) (int, error)
	AddSession() (string, error)
	RemoveSession(id string) error
	ClearAll() error
	SelectModel(id, value string) error
	SelectWorkspace(id, workspaceID string) error
	Configure(id string, cfg model.Configuration) error
	Feedback(row, col, rating int) (bool, error)
	ScrollEvent(atBottom bool) error
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SelectModelRequest is the body of PUT /sessions/{id}/model.
type SelectModelRequest struct {
	Model string `json:"model"`
}

// SelectWorkspaceRequest is the body of PUT /sessions/{id}/workspace.
type SelectWorkspaceRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

// FeedbackRequest is the body of POST /feedback.
type FeedbackRequest struct {
	Row      int `json:"row"`
	Col      int `json:"col"`
	Feedback int `json:"feedback"`
}

// ScrollRequest is the body of POST /scroll.
type ScrollRequest struct {
	AtBottom bool `json:"at_bottom"`
}

// Accepted is the answer to every panel operation. Refused operations are
// not errors: the panel simply did not change.
type Accepted struct {
	Accepted  bool   `json:"accepted"`
	SessionID string `json:"session_id,omitempty"`
	Sessions  int    `json:"sessions,omitempty"`
}

// PanelHandler handles panel endpoints.
type PanelHandler struct {
	panel  Panel
	logger *logger.Logger
}

// NewPanelHandler creates a new panel handler.
func NewPanelHandler(panel Panel, log *logger.Logger) *PanelHandler {
	return &PanelHandler{panel: panel, logger: log.Named("panel")}
}

// View handles GET /api/v1/panel
func (h *PanelHandler) View(w http.ResponseWriter, r *http.Request) {
	v, err := h.panel.View()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Catalog handles GET /api/v1/panel/catalog
func (h *PanelHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	c, err := h.panel.Catalog()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SendMessage handles POST /api/v1/panel/messages
func (h *PanelHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.panel.SendMessage(r.Context(), req.Text)
	if h.refused(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, Accepted{Accepted: n > 0, Sessions: n})
}

// AddSession handles POST /api/v1/panel/sessions
func (h *PanelHandler) AddSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.panel.AddSession()
	if h.refused(w, err) {
		return
	}
	writeJSON(w, http.StatusCreated, Accepted{Accepted: true, SessionID: id})
}

// RemoveSession handles DELETE /api/v1/panel/sessions/{id}
func (h *PanelHandler) RemoveSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if h.refused(w, h.panel.RemoveSession(id)) {
		return
	}
	writeJSON(w, http.StatusOK, Accepted{Accepted: true})
}

// ClearAll handles POST /api/v1/panel/clear
func (h *PanelHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if h.refused(w, h.panel.ClearAll()) {
		return
	}
	writeJSON(w, http.StatusOK, Accepted{Accepted: true})
}

// SelectModel handles PUT /api/v1/panel/sessions/{id}/model
func (h *PanelHandler) SelectModel(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req SelectModelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := model.ParseModelRef(req.Model); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.refused(w, h.panel.SelectModel(id, req.Model)) {
		return
	}
	writeJSON(w, http.StatusOK, Accepted{Accepted: true})
}

// SelectWorkspace handles PUT /api/v1/panel/sessions/{id}/workspace
func (h *PanelHandler) SelectWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req SelectWorkspaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.refused(w, h.panel.SelectWorkspace(id, req.WorkspaceID)) {
		return
	}
	writeJSON(w, http.StatusOK, Accepted{Accepted: true})
}

// Configure handles PUT /api/v1/panel/sessions/{id}/configuration
func (h *PanelHandler) Configure(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var cfg model.Configuration
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateConfiguration(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cfg.Images == nil {
		cfg.Images = []string{}
	}
	if cfg.Documents == nil {
		cfg.Documents = []string{}
	}
	if cfg.Videos == nil {
		cfg.Videos = []string{}
	}
	if h.refused(w, h.panel.Configure(id, cfg)) {
		return
	}
	writeJSON(w, http.StatusOK, Accepted{Accepted: true})
}

// Feedback handles POST /api/v1/panel/feedback
func (h *PanelHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateRating(req.Feedback); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recorded, err := h.panel.Feedback(req.Row, req.Col, req.Feedback)
	if h.refused(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, Accepted{Accepted: recorded})
}

// Scroll handles POST /api/v1/panel/scroll
func (h *PanelHandler) Scroll(w http.ResponseWriter, r *http.Request) {
	var req ScrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.refused(w, h.panel.ScrollEvent(req.AtBottom)) {
		return
	}
	writeJSON(w, http.StatusOK, Accepted{Accepted: true})
}

// refused writes the response for a failed operation and reports whether it did.
func (h *PanelHandler) refused(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, orchestrator.ErrUnmounted):
		h.fail(w, err)
	case errors.Is(err, registry.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		h.logger.Debug("operation refused", zap.Error(err))
		writeJSON(w, http.StatusOK, Accepted{Accepted: false})
	}
	return true
}

func (h *PanelHandler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, orchestrator.ErrUnmounted) {
		writeError(w, http.StatusServiceUnavailable, "panel is not mounted")
		return
	}
	h.logger.Error("panel request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
