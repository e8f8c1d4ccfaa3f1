package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/multichat/pkg/logger"
	"github.com/capitalize-ai/multichat/pkg/metrics"
)

// HeartbeatEvent keeps idle streams alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// StreamHandler streams panel views as server-sent events.
type StreamHandler struct {
	panel     Panel
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(panel Panel, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &StreamHandler{panel: panel, heartbeat: heartbeat, logger: log.Named("stream")}
}

// Stream handles GET /api/v1/panel/stream. A "view" event is sent on connect
// and after every change; "heartbeat" events fill idle periods.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	views, cancel, err := h.panel.Watch()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "panel is not mounted")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementPanelStreams()
	defer metrics.DecrementPanelStreams()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			h.logger.Debug("SSE client disconnected")
			return

		case v, ok := <-views:
			if !ok {
				return
			}
			if err := sendSSEEvent(w, flusher, "view", v); err != nil {
				h.logger.Debug("SSE write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{Timestamp: time.Now()}); err != nil {
				return
			}
		}
	}
}
