// Package coordinator gates user sends and fans one message out to every
// idle session as independent run requests.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/multichat/internal/connection"
	"github.com/capitalize-ai/multichat/internal/display"
	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/internal/registry"
	"github.com/capitalize-ai/multichat/pkg/logger"
	"github.com/capitalize-ai/multichat/pkg/metrics"
)

var (
	// ErrSendDisabled is returned when the send gate is closed.
	ErrSendDisabled = errors.New("sending is disabled")
	// ErrEmptyText is returned when the message is blank after trimming.
	ErrEmptyText = errors.New("message text is empty")
)

// Channel is the outbound side of the connection.
type Channel interface {
	State() connection.ReadyState
	Send(sessionID, message string) error
}

// Coordinator must run on the goroutine that owns the registry.
type Coordinator struct {
	registry *registry.Registry
	channel  Channel
	scroll   *display.ScrollState
	logger   *logger.Logger
	tracer   trace.Tracer
}

// New creates a coordinator. scroll may be nil.
func New(reg *registry.Registry, ch Channel, scroll *display.ScrollState, log *logger.Logger) *Coordinator {
	if scroll == nil {
		scroll = &display.ScrollState{}
	}
	return &Coordinator{
		registry: reg,
		channel:  ch,
		scroll:   scroll,
		logger:   log.Named("coordinator"),
		tracer:   otel.Tracer("github.com/capitalize-ai/multichat/internal/coordinator"),
	}
}

// Enabled reports whether a send would be accepted right now.
func (c *Coordinator) Enabled() bool {
	return Enabled(c.channel.State(), c.registry.Sessions())
}

// Enabled is the send gate: the channel is open, at least one session exists,
// no session is running or loading, and every session has a model.
func Enabled(state connection.ReadyState, sessions []*model.ChatSession) bool {
	if state != connection.StateOpen || len(sessions) == 0 {
		return false
	}
	for _, s := range sessions {
		if s.Running || s.Loading || s.Model == nil {
			return false
		}
	}
	return true
}

// SendMessage dispatches text to every idle session and returns how many run
// requests were written.
func (c *Coordinator) SendMessage(ctx context.Context, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyText
	}
	if !c.Enabled() {
		c.logger.Debug("send rejected, gate closed")
		return 0, ErrSendDisabled
	}

	_, span := c.tracer.Start(ctx, "coordinator.SendMessage")
	defer span.End()

	sent := 0
	for _, s := range c.registry.Sessions() {
		// Unreachable while the gate requires every session idle.
		if s.Running {
			continue
		}
		if c.channel.State() != connection.StateOpen {
			break
		}

		req, err := BuildRequest(s, text)
		if err != nil {
			c.logger.Warn("skipping session", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		payload, err := json.Marshal(req)
		if err != nil {
			c.logger.Error("failed to encode run request", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}

		id := s.ID
		c.registry.Update(id, func(s *model.ChatSession) {
			s.BeginTurn(text)
			s.Running = true
			s.RunStartedAt = time.Now()
		})
		c.scroll.ResetUserScroll()

		if err := c.channel.Send(id, string(payload)); err != nil {
			// No retry: the session stays running until a final response arrives.
			c.logger.Error("failed to send run request", zap.String("session_id", id), zap.Error(err))
			span.RecordError(err)
			continue
		}
		metrics.RunsTotal.WithLabelValues(string(req.Data.Mode)).Inc()
		sent++
	}

	span.SetAttributes(attribute.Int("multichat.sessions_dispatched", sent))
	if sent == 0 {
		span.SetStatus(codes.Error, "no run request written")
	}
	c.logger.Info("message dispatched", zap.Int("sessions", sent))
	return sent, nil
}

// BuildRequest maps a session and trimmed text to its run request.
func BuildRequest(s *model.ChatSession, text string) (model.RunRequest, error) {
	if s.Model == nil {
		return model.RunRequest{}, fmt.Errorf("session %s: %w", s.ID, registry.ErrModelNotSelected)
	}

	iface := model.InterfaceLangchain
	mode := model.ModeChain
	if m := s.ModelMetadata; m != nil {
		if m.Interface != "" {
			iface = m.Interface
		}
		mode = model.ModeFor(m.PrimaryOutput())
	}

	cfg := s.Configuration
	data := model.RunData{
		ModelName: s.Model.Name,
		Provider:  s.Model.Provider,
		SessionID: s.ID,
		Images:    nonNil(cfg.Images),
		Documents: nonNil(cfg.Documents),
		Videos:    nonNil(cfg.Videos),
		ModelKwargs: model.ModelKwargs{
			Streaming:   cfg.Streaming,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			Seed:        cfg.Seed,
		},
		Text: text,
		Mode: mode,
	}
	if s.Workspace != nil {
		data.WorkspaceID = s.Workspace.ID
	}

	return model.RunRequest{
		Action:         model.ActionRun,
		ModelInterface: iface,
		Data:           data,
	}, nil
}

func nonNil(s []string) []string {
	if len(s) == 0 {
		return []string{}
	}
	return append([]string(nil), s...)
}
