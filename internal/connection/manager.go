package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/pkg/logger"
	"github.com/capitalize-ai/multichat/pkg/metrics"
)

const (
	writeWait    = 10 * time.Second
	eventBufSize = 64
)

// ErrAlreadyStarted is returned when Connect is called twice on one manager.
var ErrAlreadyStarted = errors.New("connection already started")

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Manager owns one duplex channel for its whole life. Any close or error is
// terminal: there is no reconnect, a new Manager is needed to re-establish.
type Manager struct {
	dialer Dialer
	header http.Header
	logger *logger.Logger

	state  atomic.Int32
	events chan Event

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed map[string]bool
	started    bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager creates a manager. header is sent with the handshake and may be nil.
func NewManager(dialer Dialer, header http.Header, log *logger.Logger) *Manager {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Manager{
		dialer:     dialer,
		header:     header,
		logger:     log.Named("connection"),
		events:     make(chan Event, eventBufSize),
		subscribed: make(map[string]bool),
		done:       make(chan struct{}),
	}
}

// Events delivers open, close and frame events in channel order.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current lifecycle state.
func (m *Manager) State() ReadyState {
	return ReadyState(m.state.Load())
}

func (m *Manager) setState(s ReadyState) {
	m.state.Store(int32(s))
	metrics.ConnectionState.Set(float64(s))
}

// Connect starts opening the channel to endpoint and returns immediately.
// The outcome is reported on Events.
func (m *Manager) Connect(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.setState(StateConnecting)
	m.logger.Info("connecting", zap.String("endpoint", endpoint))

	m.wg.Add(1)
	go m.run(ctx, endpoint)
	return nil
}

func (m *Manager) run(ctx context.Context, endpoint string) {
	defer m.wg.Done()

	conn, _, err := m.dialer.DialContext(ctx, endpoint, m.header)
	if err != nil {
		m.setState(StateClosed)
		if m.closing() {
			return
		}
		m.logger.Error("failed to connect", zap.String("endpoint", endpoint), zap.Error(err))
		m.emit(Event{Type: EventClosed, Err: fmt.Errorf("failed to connect to %s: %w", endpoint, err)})
		return
	}

	m.mu.Lock()
	if m.closing() {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.setState(StateOpen)
	m.mu.Unlock()

	m.logger.Info("connection open")
	m.emit(Event{Type: EventOpened})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if m.closing() {
				return
			}
			m.setState(StateClosed)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Info("connection closed by peer")
				err = nil
			} else {
				m.logger.Error("connection failed", zap.Error(err))
				err = fmt.Errorf("connection lost: %w", err)
			}
			m.emit(Event{Type: EventClosed, Err: err})
			return
		}
		m.emit(Event{Type: EventFrame, Data: data})
	}
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Manager) closing() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Subscribe emits a subscribe frame for sessionID at most once per connection.
// It is a no-op while the channel is not open.
func (m *Manager) Subscribe(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.State() != StateOpen {
		return nil
	}
	if m.subscribed[sessionID] {
		return nil
	}

	frame := model.SubscribeFrame{Action: model.FrameSubscribe, SessionID: sessionID}
	if err := m.write(frame); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", sessionID, err)
	}
	m.subscribed[sessionID] = true
	metrics.FramesSentTotal.WithLabelValues(model.FrameSubscribe).Inc()
	m.logger.Debug("subscribed", zap.String("session_id", sessionID))
	return nil
}

// Subscribed reports whether a subscribe frame was sent for sessionID.
func (m *Manager) Subscribed(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed[sessionID]
}

// Send transmits a sendmessage frame carrying message for sessionID. When the
// channel is not open the call does nothing: there is no queueing.
func (m *Manager) Send(sessionID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.State() != StateOpen {
		metrics.FramesSkippedTotal.WithLabelValues(model.FrameSendMessage).Inc()
		m.logger.Debug("send skipped, channel not open", zap.String("session_id", sessionID))
		return nil
	}

	frame := model.SendMessageFrame{
		Action:    model.FrameSendMessage,
		SessionID: sessionID,
		Message:   message,
	}
	if err := m.write(frame); err != nil {
		return fmt.Errorf("failed to send message for %s: %w", sessionID, err)
	}
	metrics.FramesSentTotal.WithLabelValues(model.FrameSendMessage).Inc()
	return nil
}

// write must be called with mu held.
func (m *Manager) write(v any) error {
	if err := m.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return m.conn.WriteJSON(v)
}

// Teardown closes the channel, clears subscriptions and waits for the reader
// to exit. It is safe to call more than once and from any goroutine.
func (m *Manager) Teardown() {
	m.closeOnce.Do(func() {
		close(m.done)

		m.mu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		if m.conn != nil {
			m.setState(StateClosing)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = m.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			m.conn.Close()
			m.conn = nil
		}
		m.subscribed = make(map[string]bool)
		m.mu.Unlock()

		m.wg.Wait()
		m.setState(StateClosed)
		m.logger.Info("connection torn down")
	})
}
