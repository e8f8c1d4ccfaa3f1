// Package orchestrator mounts the multi-session chat panel: it owns the
// session registry and runs every mutation on a single event loop fed by user
// operations, connection events and catalog results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/multichat/internal/catalog"
	"github.com/capitalize-ai/multichat/internal/connection"
	"github.com/capitalize-ai/multichat/internal/coordinator"
	"github.com/capitalize-ai/multichat/internal/display"
	"github.com/capitalize-ai/multichat/internal/feedback"
	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/internal/registry"
	"github.com/capitalize-ai/multichat/internal/router"
	"github.com/capitalize-ai/multichat/pkg/logger"
	"github.com/capitalize-ai/multichat/pkg/metrics"
)

const (
	maxSessions     = registry.MaxSessions
	feedbackTimeout = 10 * time.Second
)

var (
	// ErrUnmounted is returned by operations on a panel that is not mounted.
	ErrUnmounted = errors.New("panel is not mounted")
	// ErrAlreadyMounted is returned when Mount is called twice.
	ErrAlreadyMounted = errors.New("panel already mounted")
	// ErrAddDisabled is returned by AddSession after a send until the next ClearAll.
	ErrAddDisabled = errors.New("adding sessions is disabled until the panel is cleared")
	// ErrNoSuchMessage is returned when feedback targets a cell that holds no message.
	ErrNoSuchMessage = errors.New("no message at position")
)

// Connection is the duplex channel the panel runs over. *connection.Manager
// satisfies it.
type Connection interface {
	Connect(ctx context.Context, endpoint string) error
	Events() <-chan connection.Event
	State() connection.ReadyState
	Subscribe(sessionID string) error
	Send(sessionID, message string) error
	Teardown()
}

// Options configure a panel.
type Options struct {
	Endpoint   string
	RAGEnabled bool
	Catalog    catalog.Source
	Feedback   feedback.Sink
}

// MultiChat is one mounted panel. It is single-use: once unmounted it cannot
// be mounted again.
type MultiChat struct {
	opts   Options
	conn   Connection
	logger *logger.Logger

	// Owned by the loop.
	registry   *registry.Registry
	router     *router.Router
	coord      *coordinator.Coordinator
	scroll     display.ScrollState
	catalog    *catalog.Catalog
	addEnabled bool
	initErr    string
	follow     bool
	dirty      bool
	histDirty  bool
	watchers   map[int]chan View
	nextWatch  int

	ops       chan func()
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	mounted   bool
	unmounted bool
}

// New creates an unmounted panel over conn.
func New(conn Connection, opts Options, log *logger.Logger) *MultiChat {
	if opts.Feedback == nil {
		opts.Feedback = feedback.NewLogSink(log)
	}
	mc := &MultiChat{
		opts:     opts,
		conn:     conn,
		logger:   log.Named("orchestrator"),
		registry: registry.New(),
		catalog:  catalog.Loading(),
		watchers: make(map[int]chan View),
		ops:      make(chan func()),
		done:     make(chan struct{}),
	}
	mc.router = router.New(mc.registry, log)
	mc.coord = coordinator.New(mc.registry, conn, &mc.scroll, log)
	mc.registry.OnChange(func() {
		mc.dirty = true
		mc.histDirty = true
	})
	return mc
}

// Mount creates the default sessions, opens the channel and starts loading
// the catalog. Failures are reported through View.InitError.
func (mc *MultiChat) Mount(ctx context.Context) error {
	mc.mu.Lock()
	if mc.unmounted {
		mc.mu.Unlock()
		return ErrUnmounted
	}
	if mc.mounted {
		mc.mu.Unlock()
		return ErrAlreadyMounted
	}
	mc.mounted = true
	mc.ctx, mc.cancel = context.WithCancel(ctx)
	mc.mu.Unlock()

	mc.wg.Add(1)
	go mc.loop()

	err := mc.do(func() {
		for i := 0; i < registry.MinSessions; i++ {
			if _, err := mc.registry.Add(); err != nil {
				mc.logger.Error("failed to add default session", zap.Error(err))
			}
		}
		mc.addEnabled = true
		mc.dirty = true

		if err := mc.conn.Connect(mc.ctx, mc.opts.Endpoint); err != nil {
			mc.initErr = fmt.Sprintf("WebSocket error: %v", err)
		}
	})
	if err != nil {
		return err
	}

	if mc.opts.Catalog != nil {
		mc.wg.Add(1)
		go mc.loadCatalog()
	}

	mc.logger.Info("panel mounted", zap.String("endpoint", mc.opts.Endpoint))
	return nil
}

// Unmount tears down the channel, drops every session and stops the loop.
// It waits for background work to finish.
func (mc *MultiChat) Unmount() {
	mc.mu.Lock()
	if !mc.mounted || mc.unmounted {
		mc.unmounted = true
		mc.mu.Unlock()
		return
	}
	mc.unmounted = true
	mc.mu.Unlock()

	mc.cancel()
	mc.conn.Teardown()

	_ = mc.do(func() {
		mc.registry.Reset()
		for id, ch := range mc.watchers {
			close(ch)
			delete(mc.watchers, id)
		}
	})
	close(mc.done)
	mc.wg.Wait()
	mc.logger.Info("panel unmounted")
}

func (mc *MultiChat) loop() {
	defer mc.wg.Done()
	events := mc.conn.Events()
	for {
		select {
		case op := <-mc.ops:
			op()
		case ev := <-events:
			mc.handleEvent(ev)
		case <-mc.done:
			return
		}
		mc.publish()
	}
}

// do runs fn on the loop and waits for it.
func (mc *MultiChat) do(fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case mc.ops <- op:
	case <-mc.done:
		return ErrUnmounted
	}
	<-finished
	return nil
}

// call runs fn on the loop when the panel is mounted.
func (mc *MultiChat) call(fn func()) error {
	mc.mu.Lock()
	ok := mc.mounted && !mc.unmounted
	mc.mu.Unlock()
	if !ok {
		return ErrUnmounted
	}
	return mc.do(fn)
}

func (mc *MultiChat) handleEvent(ev connection.Event) {
	switch ev.Type {
	case connection.EventOpened:
		for _, s := range mc.registry.Sessions() {
			mc.subscribe(s.ID)
		}
		mc.dirty = true
	case connection.EventClosed:
		if ev.Err != nil {
			mc.initErr = fmt.Sprintf("WebSocket error: %v", ev.Err)
		} else {
			mc.initErr = "WebSocket connection closed"
		}
		mc.dirty = true
	case connection.EventFrame:
		mc.router.Route(ev.Data)
	}
}

func (mc *MultiChat) subscribe(id string) {
	if err := mc.conn.Subscribe(id); err != nil {
		mc.logger.Error("subscribe failed", zap.String("session_id", id), zap.Error(err))
	}
}

func (mc *MultiChat) loadCatalog() {
	defer mc.wg.Done()
	cat, err := catalog.Load(mc.ctx, mc.opts.Catalog, mc.opts.RAGEnabled, mc.logger)
	apply := func() {
		mc.catalog = cat
		if err != nil {
			mc.initErr = err.Error()
		}
		mc.dirty = true
	}
	select {
	case mc.ops <- apply:
	case <-mc.done:
	}
}

// publish must run on the loop.
func (mc *MultiChat) publish() {
	if mc.histDirty {
		mc.histDirty = false
		rows := 0
		for _, s := range mc.registry.Sessions() {
			if n := len(s.MessageHistory); n > rows {
				rows = n
			}
		}
		mc.follow = mc.scroll.OnHistoryChange(rows)
	}
	if !mc.dirty {
		return
	}
	mc.dirty = false
	if len(mc.watchers) == 0 {
		return
	}
	v := mc.snapshot()
	for _, ch := range mc.watchers {
		// keep only the latest view for slow watchers
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// State returns the channel state.
func (mc *MultiChat) State() connection.ReadyState {
	return mc.conn.State()
}

// View returns a snapshot of the panel.
func (mc *MultiChat) View() (View, error) {
	var v View
	err := mc.call(func() { v = mc.snapshot() })
	return v, err
}

// Catalog returns a copy of the loaded catalog.
func (mc *MultiChat) Catalog() (*catalog.Catalog, error) {
	var c *catalog.Catalog
	err := mc.call(func() { c = mc.catalog.Clone() })
	return c, err
}

// Watch streams a view after every change. The channel holds only the
// latest view and is closed by cancel or Unmount.
func (mc *MultiChat) Watch() (<-chan View, func(), error) {
	ch := make(chan View, 1)
	var id int
	err := mc.call(func() {
		id = mc.nextWatch
		mc.nextWatch++
		mc.watchers[id] = ch
		ch <- mc.snapshot()
	})
	if err != nil {
		return nil, func() {}, err
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = mc.call(func() {
				if _, ok := mc.watchers[id]; ok {
					close(ch)
					delete(mc.watchers, id)
				}
			})
		})
	}
	return ch, cancel, nil
}

// SendMessage fans text out to every idle session. It returns the number of
// run requests written.
func (mc *MultiChat) SendMessage(ctx context.Context, text string) (int, error) {
	var (
		n       int
		sendErr error
	)
	err := mc.call(func() {
		n, sendErr = mc.coord.SendMessage(ctx, text)
		if sendErr == nil {
			mc.addEnabled = false
			mc.dirty = true
		}
	})
	if err != nil {
		return 0, err
	}
	return n, sendErr
}

// AddSession adds a session and subscribes it.
func (mc *MultiChat) AddSession() (string, error) {
	var (
		id     string
		addErr error
	)
	err := mc.call(func() {
		if !mc.addEnabled {
			addErr = ErrAddDisabled
			return
		}
		s, err := mc.registry.Add()
		if err != nil {
			addErr = err
			return
		}
		id = s.ID
		mc.subscribe(id)
	})
	if err != nil {
		return "", err
	}
	return id, addErr
}

// RemoveSession removes a session. No unsubscribe frame is sent.
func (mc *MultiChat) RemoveSession(id string) error {
	var rmErr error
	err := mc.call(func() {
		if rmErr = mc.registry.Remove(id); rmErr == nil {
			mc.router.Forget(id)
		}
	})
	if err != nil {
		return err
	}
	return rmErr
}

// ClearAll empties every history, renews every session id and subscribes
// the new ids. Frames for the old ids are dropped from then on.
func (mc *MultiChat) ClearAll() error {
	return mc.call(func() {
		for _, s := range mc.registry.Sessions() {
			mc.router.Forget(s.ID)
		}
		for _, id := range mc.registry.ClearAll() {
			mc.subscribe(id)
		}
		mc.addEnabled = true
		mc.dirty = true
	})
}

// SelectModel sets a session's model from a "provider::name" value and
// attaches its catalog record when one is known.
func (mc *MultiChat) SelectModel(id, value string) error {
	ref, err := model.ParseModelRef(value)
	if err != nil {
		return fmt.Errorf("%w: %v", registry.ErrModelNotSelected, err)
	}
	var selErr error
	err = mc.call(func() {
		meta, err := mc.catalog.Find(ref)
		if err != nil {
			mc.logger.Debug("model has no catalog record", zap.String("model", value))
		}
		selErr = mc.registry.SelectModel(id, ref, meta)
	})
	if err != nil {
		return err
	}
	return selErr
}

// SelectWorkspace sets a session's workspace. An empty id clears it.
func (mc *MultiChat) SelectWorkspace(id, workspaceID string) error {
	var selErr error
	err := mc.call(func() {
		if workspaceID == "" {
			selErr = mc.registry.SelectWorkspace(id, nil)
			return
		}
		ws, err := mc.catalog.FindWorkspace(workspaceID)
		if err != nil {
			selErr = err
			return
		}
		selErr = mc.registry.SelectWorkspace(id, &model.WorkspaceRef{ID: ws.ID, Name: ws.Name})
	})
	if err != nil {
		return err
	}
	return selErr
}

// Configure replaces a session's configuration.
func (mc *MultiChat) Configure(id string, cfg model.Configuration) error {
	var cfgErr error
	err := mc.call(func() { cfgErr = mc.registry.Configure(id, cfg) })
	if err != nil {
		return err
	}
	return cfgErr
}

// Feedback rates the message displayed at row, col and submits it to the
// feedback sink in the background. Sink failures are only logged. It returns
// false when the message carries no session correlation.
func (mc *MultiChat) Feedback(row, col, rating int) (bool, error) {
	var (
		fb    model.FeedbackData
		ok    bool
		fbErr error
	)
	err := mc.call(func() {
		sessions := mc.registry.Sessions()
		if col < 0 || col >= len(sessions) || row < 0 || row >= len(sessions[col].MessageHistory) {
			fbErr = ErrNoSuchMessage
			return
		}
		fb, ok = feedback.Map(rating, row, sessions[col].MessageHistory[row])
		if !ok {
			return
		}
		mc.wg.Add(1)
		go mc.submitFeedback(fb)
	})
	if err != nil {
		return false, err
	}
	if fbErr != nil {
		return false, fbErr
	}
	if !ok {
		metrics.FeedbackTotal.WithLabelValues("skipped").Inc()
	}
	return ok, nil
}

func (mc *MultiChat) submitFeedback(fb model.FeedbackData) {
	defer mc.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), feedbackTimeout)
	defer cancel()

	if err := mc.opts.Feedback.Submit(ctx, fb); err != nil {
		metrics.FeedbackTotal.WithLabelValues("failed").Inc()
		mc.logger.Warn("feedback submission failed", zap.String("session_id", fb.SessionID), zap.Error(err))
		return
	}
	metrics.FeedbackTotal.WithLabelValues("submitted").Inc()
}

// ScrollEvent records a scroll observed by the view.
func (mc *MultiChat) ScrollEvent(atBottom bool) error {
	return mc.call(func() {
		mc.scroll.OnScrollEvent(atBottom)
		mc.follow = mc.scroll.Following() && mc.follow
		mc.dirty = true
	})
}
