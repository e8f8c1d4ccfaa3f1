// Package router demultiplexes inbound channel frames by session and hands
// them to the accumulator.
package router

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/multichat/internal/accumulator"
	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/internal/registry"
	"github.com/capitalize-ai/multichat/pkg/logger"
	"github.com/capitalize-ai/multichat/pkg/metrics"
)

// Outcome classifies what happened to one inbound frame.
type Outcome string

const (
	OutcomeMalformed      Outcome = "malformed"
	OutcomeNoSession      Outcome = "no_session"
	OutcomeUnknownSession Outcome = "unknown_session"
	OutcomeHeartbeat      Outcome = "heartbeat"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeMerged         Outcome = "merged"
	OutcomeFinalized      Outcome = "finalized"
)

// Dropped reports whether the frame was discarded before reaching a session.
func (o Outcome) Dropped() bool {
	switch o {
	case OutcomeMalformed, OutcomeNoSession, OutcomeUnknownSession:
		return true
	}
	return false
}

// Router applies frames in the order Route is called. It must run on the
// goroutine that owns the registry.
type Router struct {
	registry *registry.Registry
	logger   *logger.Logger
	scratch  map[string]*accumulator.Scratch
}

// New creates a router over reg.
func New(reg *registry.Registry, log *logger.Logger) *Router {
	return &Router{
		registry: reg,
		logger:   log.Named("router"),
		scratch:  make(map[string]*accumulator.Scratch),
	}
}

// Route decodes one raw frame and applies it to its session.
func (r *Router) Route(data []byte) Outcome {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return r.drop(OutcomeMalformed, "", zap.Error(err))
	}
	if env.SessionID == "" {
		return r.drop(OutcomeNoSession, "")
	}
	if !r.registry.Has(env.SessionID) {
		delete(r.scratch, env.SessionID)
		return r.drop(OutcomeUnknownSession, env.SessionID)
	}

	resp, err := env.Response()
	if err != nil {
		return r.drop(OutcomeMalformed, env.SessionID, zap.Error(err))
	}

	var outcome Outcome
	switch resp.Action {
	case model.ActionHeartbeat:
		outcome = OutcomeHeartbeat
	case model.ActionFinalResponse:
		outcome = r.finalize(env.SessionID, resp)
	default:
		outcome = r.merge(env.SessionID, resp)
	}
	metrics.FramesReceivedTotal.WithLabelValues(string(outcome)).Inc()
	return outcome
}

// Forget discards accumulation state for a session id that is no longer live.
func (r *Router) Forget(sessionID string) {
	delete(r.scratch, sessionID)
}

func (r *Router) merge(id string, resp *model.MessageResponse) Outcome {
	result := accumulator.NoOp
	r.registry.Update(id, func(s *model.ChatSession) {
		result = accumulator.Merge(id, s, resp, r.scratchFor(id))
	})
	if result == accumulator.NoOp {
		r.logger.Debug("frame ignored",
			zap.String("session_id", id),
			zap.String("action", string(resp.Action)),
		)
		return OutcomeIgnored
	}
	return OutcomeMerged
}

// finalize merges the last frame of a turn and releases the session.
func (r *Router) finalize(id string, resp *model.MessageResponse) Outcome {
	var (
		modelName string
		elapsed   time.Duration
	)
	r.registry.Update(id, func(s *model.ChatSession) {
		accumulator.Merge(id, s, resp, r.scratchFor(id))
		if s.Running && !s.RunStartedAt.IsZero() {
			elapsed = time.Since(s.RunStartedAt)
			if s.Model != nil {
				modelName = s.Model.Value()
			}
		}
		s.Running = false
		s.RunStartedAt = time.Time{}
	})
	delete(r.scratch, id)

	if elapsed > 0 {
		metrics.RecordRunFinished(modelName, elapsed.Seconds())
	}
	r.logger.Debug("run finished",
		zap.String("session_id", id),
		zap.Duration("elapsed", elapsed),
	)
	return OutcomeFinalized
}

func (r *Router) scratchFor(id string) *accumulator.Scratch {
	sc, ok := r.scratch[id]
	if !ok {
		sc = accumulator.NewScratch()
		r.scratch[id] = sc
	}
	return sc
}

func (r *Router) drop(outcome Outcome, sessionID string, fields ...zap.Field) Outcome {
	metrics.RecordDrop(string(outcome))
	fields = append(fields, zap.String("reason", string(outcome)))
	if sessionID != "" {
		fields = append(fields, zap.String("session_id", sessionID))
	}
	if outcome == OutcomeMalformed {
		r.logger.Warn("dropping inbound frame", fields...)
	} else {
		r.logger.Debug("dropping inbound frame", fields...)
	}
	return outcome
}
