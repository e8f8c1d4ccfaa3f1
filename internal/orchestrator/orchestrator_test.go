package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/capitalize-ai/multichat/internal/catalog"
	"github.com/capitalize-ai/multichat/internal/connection"
	"github.com/capitalize-ai/multichat/internal/model"
	"github.com/capitalize-ai/multichat/internal/registry"
	"github.com/capitalize-ai/multichat/pkg/logger"
)

type outbound struct {
	sessionID string
	message   string
}

type fakeConn struct {
	mu         sync.Mutex
	state      connection.ReadyState
	events     chan connection.Event
	subscribed map[string]int
	sent       []outbound
	endpoint   string
	torn       bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan connection.Event, 16), subscribed: map[string]int{}}
}

func (f *fakeConn) Connect(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoint = endpoint
	f.state = connection.StateConnecting
	return nil
}

func (f *fakeConn) Events() <-chan connection.Event { return f.events }

func (f *fakeConn) State() connection.ReadyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) Subscribe(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == connection.StateOpen {
		f.subscribed[id]++
	}
	return nil
}

func (f *fakeConn) Send(id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == connection.StateOpen {
		f.sent = append(f.sent, outbound{id, message})
	}
	return nil
}

func (f *fakeConn) Teardown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torn = true
	f.state = connection.StateClosed
	f.subscribed = map[string]int{}
}

func (f *fakeConn) open() {
	f.mu.Lock()
	f.state = connection.StateOpen
	f.mu.Unlock()
	f.events <- connection.Event{Type: connection.EventOpened}
}

func (f *fakeConn) subscriptions(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[id]
}

func (f *fakeConn) sentFrames() []outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outbound(nil), f.sent...)
}

type stubCatalog struct {
	models []model.Model
	err    error
}

func (s stubCatalog) Models(context.Context) ([]model.Model, error) { return s.models, s.err }

func (s stubCatalog) Workspaces(context.Context) ([]model.Workspace, error) {
	return []model.Workspace{{ID: "ws-1", Name: "docs"}}, nil
}

type recordingSink struct {
	mu  sync.Mutex
	got []model.FeedbackData
	err error
}

func (r *recordingSink) Submit(_ context.Context, fb model.FeedbackData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, fb)
	return r.err
}

func (r *recordingSink) records() []model.FeedbackData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.FeedbackData(nil), r.got...)
}

var textModel = model.Model{
	Name:             "anthropic.claude-v2",
	Provider:         "bedrock",
	Interface:        model.InterfaceLangchain,
	OutputModalities: []model.Modality{model.ModalityText},
}

func mount(t *testing.T, opts Options) (*MultiChat, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	if opts.Catalog == nil {
		opts.Catalog = stubCatalog{models: []model.Model{textModel}}
	}
	mc := New(conn, opts, logger.NewNop())
	require.NoError(t, mc.Mount(context.Background()))
	t.Cleanup(mc.Unmount)

	require.Eventually(t, func() bool {
		v, err := mc.View()
		return err == nil && v.ModelsStatus != catalog.StatusLoading
	}, time.Second, 5*time.Millisecond)
	return mc, conn
}

// ready mounts a panel, opens the channel and selects a model everywhere.
func ready(t *testing.T, opts Options) (*MultiChat, *fakeConn, []string) {
	t.Helper()
	mc, conn := mount(t, opts)
	conn.open()
	waitView(t, mc, func(v View) bool { return v.State == connection.StateOpen })

	v, err := mc.View()
	require.NoError(t, err)
	ids := make([]string, len(v.Sessions))
	for i, s := range v.Sessions {
		ids[i] = s.ID
		require.NoError(t, mc.SelectModel(s.ID, textModel.Ref().Value()))
	}
	return mc, conn, ids
}

func waitView(t *testing.T, mc *MultiChat, cond func(View) bool) View {
	t.Helper()
	var last View
	require.Eventually(t, func() bool {
		v, err := mc.View()
		if err != nil {
			return false
		}
		last = v
		return cond(v)
	}, 2*time.Second, 5*time.Millisecond)
	return last
}

func frame(t *testing.T, sessionID string, resp map[string]any) connection.Event {
	t.Helper()
	inner, err := json.Marshal(resp)
	require.NoError(t, err)
	data, err := json.Marshal(map[string]any{"sessionId": sessionID, "message": string(inner)})
	require.NoError(t, err)
	return connection.Event{Type: connection.EventFrame, Data: data}
}

func TestMountDefaults(t *testing.T) {
	mc, conn := mount(t, Options{Endpoint: "ws://backend/socket", RAGEnabled: true})

	v, err := mc.View()
	require.NoError(t, err)
	assert.Len(t, v.Sessions, 2)
	assert.True(t, v.AddEnabled)
	assert.False(t, v.Enabled)
	assert.Equal(t, "Connecting", v.StateLabel)
	assert.Equal(t, catalog.StatusFinished, v.ModelsStatus)
	assert.Equal(t, catalog.StatusFinished, v.WorkspacesStatus)
	assert.Equal(t, "ws://backend/socket", conn.endpoint)
	for _, s := range v.Sessions {
		assert.Equal(t, model.DefaultConfiguration(), s.Configuration)
		assert.Equal(t, 0, conn.subscriptions(s.ID))
	}

	conn.open()
	v = waitView(t, mc, func(v View) bool { return v.State == connection.StateOpen })
	assert.Equal(t, "Connected", v.StateLabel)
	for _, s := range v.Sessions {
		assert.Equal(t, 1, conn.subscriptions(s.ID))
	}

	cat, err := mc.Catalog()
	require.NoError(t, err)
	assert.Len(t, cat.Models, 1)
	assert.Len(t, cat.Workspaces, 1)
}

func TestCatalogErrorSurfacesButPanelStaysUsable(t *testing.T) {
	mc, conn := mount(t, Options{Catalog: stubCatalog{err: errors.New("graphql down")}})

	v, err := mc.View()
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusError, v.ModelsStatus)
	assert.Contains(t, v.InitError, "graphql down")

	conn.open()
	v = waitView(t, mc, func(v View) bool { return v.State == connection.StateOpen })
	for _, s := range v.Sessions {
		require.NoError(t, mc.SelectModel(s.ID, "bedrock::anthropic.claude-v2"))
	}
	v, err = mc.View()
	require.NoError(t, err)
	assert.True(t, v.Enabled)
	assert.Nil(t, v.Sessions[0].ModelMetadata)
}

func TestSendAndStream(t *testing.T) {
	mc, conn, ids := ready(t, Options{})
	a, b := ids[0], ids[1]

	n, err := mc.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sent := conn.sentFrames()
	require.Len(t, sent, 2)
	assert.Equal(t, a, sent[0].sessionID)
	assert.Equal(t, b, sent[1].sessionID)

	v, err := mc.View()
	require.NoError(t, err)
	assert.False(t, v.Enabled)
	assert.False(t, v.AddEnabled)
	assert.True(t, v.Running)
	require.Len(t, v.Rows, 2)
	assert.Equal(t, "hi", v.Rows[0][1].Content)

	conn.events <- frame(t, a, map[string]any{"action": "llm_new_token", "data": map[string]any{"token": map[string]any{"sequenceNumber": 0, "value": "Hel"}}})
	conn.events <- frame(t, b, map[string]any{"action": "llm_new_token", "data": map[string]any{"token": map[string]any{"sequenceNumber": 0, "value": "Bon"}}})
	conn.events <- frame(t, a, map[string]any{"action": "heartbeat"})
	conn.events <- frame(t, a, map[string]any{"action": "llm_new_token", "data": map[string]any{"token": map[string]any{"sequenceNumber": 1, "value": "lo"}}})
	conn.events <- frame(t, a, map[string]any{"action": "final_response", "data": map[string]any{
		"content":  "Hello",
		"metadata": map[string]any{"sessionId": a, "modelId": "anthropic.claude-v2", "prompts": []any{[]any{"hi"}}},
	}})

	v = waitView(t, mc, func(v View) bool { return !v.Sessions[0].Running })
	assert.True(t, v.Sessions[1].Running)
	assert.Equal(t, "Hello", v.Rows[1][0].Content)
	assert.Equal(t, "Bon", v.Rows[1][1].Content)
	assert.False(t, v.Enabled)

	_, err = mc.SendMessage(context.Background(), "again")
	assert.Error(t, err)
}

func TestAddAndRemoveSessions(t *testing.T) {
	mc, conn, ids := ready(t, Options{})

	assert.ErrorIs(t, mc.RemoveSession(ids[0]), registry.ErrPanelMinimum)

	third, err := mc.AddSession()
	require.NoError(t, err)
	assert.Equal(t, 1, conn.subscriptions(third))
	_, err = mc.AddSession()
	require.NoError(t, err)
	_, err = mc.AddSession()
	assert.ErrorIs(t, err, registry.ErrPanelFull)

	require.NoError(t, mc.RemoveSession(third))
	v, err := mc.View()
	require.NoError(t, err)
	assert.Len(t, v.Sessions, 3)
	assert.True(t, v.AddEnabled)

	// a new session has no model, which closes the gate
	assert.False(t, v.Enabled)
}

func TestAddDisabledAfterSendUntilClear(t *testing.T) {
	mc, conn, ids := ready(t, Options{})

	_, err := mc.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	_, err = mc.AddSession()
	assert.ErrorIs(t, err, ErrAddDisabled)
	_, err = mc.AddSession()
	assert.ErrorIs(t, err, ErrAddDisabled)

	require.NoError(t, mc.ClearAll())
	v, err := mc.View()
	require.NoError(t, err)
	assert.True(t, v.AddEnabled)
	assert.Empty(t, v.Rows)
	for i, s := range v.Sessions {
		assert.NotEqual(t, ids[i], s.ID)
		assert.Empty(t, s.MessageHistory)
		assert.False(t, s.Running)
		assert.Equal(t, 1, conn.subscriptions(s.ID))
	}

	// late frame for an abandoned id changes nothing
	conn.events <- frame(t, ids[0], map[string]any{"action": "final_response", "data": map[string]any{"content": "late"}})
	v2 := waitView(t, mc, func(View) bool { return true })
	assert.Empty(t, v2.Rows)
	assert.True(t, v2.Enabled)
}

func TestRemoveRefusedWithHistory(t *testing.T) {
	mc, _, _ := ready(t, Options{})
	third, err := mc.AddSession()
	require.NoError(t, err)
	require.NoError(t, mc.SelectModel(third, textModel.Ref().Value()))

	_, err = mc.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	assert.ErrorIs(t, mc.RemoveSession(third), registry.ErrHistoryNotEmpty)
}

func TestSelectionOperations(t *testing.T) {
	mc, _, ids := ready(t, Options{RAGEnabled: true})

	assert.ErrorIs(t, mc.SelectModel(ids[0], "no-separator"), registry.ErrModelNotSelected)
	assert.ErrorIs(t, mc.SelectModel("ghost", textModel.Ref().Value()), registry.ErrSessionNotFound)

	require.NoError(t, mc.SelectWorkspace(ids[0], "ws-1"))
	assert.ErrorIs(t, mc.SelectWorkspace(ids[0], "ws-9"), catalog.ErrWorkspaceNotFound)

	cfg := model.DefaultConfiguration()
	cfg.MaxTokens = 1024
	require.NoError(t, mc.Configure(ids[1], cfg))

	v, err := mc.View()
	require.NoError(t, err)
	assert.Equal(t, &model.WorkspaceRef{ID: "ws-1", Name: "docs"}, v.Sessions[0].Workspace)
	assert.Equal(t, 1024, v.Sessions[1].Configuration.MaxTokens)
	require.NotNil(t, v.Sessions[0].ModelMetadata)

	require.NoError(t, mc.SelectWorkspace(ids[0], ""))
	v, err = mc.View()
	require.NoError(t, err)
	assert.Nil(t, v.Sessions[0].Workspace)
}

func TestFeedback(t *testing.T) {
	sink := &recordingSink{}
	mc, conn, ids := ready(t, Options{Feedback: sink})

	_, err := mc.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	conn.events <- frame(t, ids[1], map[string]any{"action": "final_response", "data": map[string]any{
		"content":  "Hello",
		"metadata": map[string]any{"sessionId": ids[1], "modelId": "m-1", "prompts": []any{[]any{"hi"}}},
	}})
	waitView(t, mc, func(v View) bool { return !v.Sessions[1].Running })

	ok, err := mc.Feedback(1, 1, model.FeedbackPositive)
	require.NoError(t, err)
	assert.True(t, ok)

	// the human turn has no session correlation
	ok, err = mc.Feedback(0, 1, model.FeedbackPositive)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = mc.Feedback(9, 0, model.FeedbackNegative)
	assert.ErrorIs(t, err, ErrNoSuchMessage)

	require.Eventually(t, func() bool { return len(sink.records()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.FeedbackData{
		SessionID:  ids[1],
		Key:        1,
		Feedback:   1,
		Prompt:     "hi",
		Completion: "Hello",
		Model:      "m-1",
	}, sink.records()[0])
}

func TestFeedbackSinkErrorNotSurfaced(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	mc, conn, ids := ready(t, Options{Feedback: sink})

	_, err := mc.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	conn.events <- frame(t, ids[0], map[string]any{"action": "final_response", "data": map[string]any{
		"content":  "x",
		"metadata": map[string]any{"sessionId": ids[0]},
	}})
	waitView(t, mc, func(v View) bool { return !v.Sessions[0].Running })

	ok, err := mc.Feedback(1, 0, model.FeedbackNegative)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Eventually(t, func() bool { return len(sink.records()) == 1 }, time.Second, 5*time.Millisecond)

	v, err := mc.View()
	require.NoError(t, err)
	assert.Empty(t, v.InitError)
}

func TestConnectionCloseSurfacesError(t *testing.T) {
	mc, conn, _ := ready(t, Options{})

	conn.mu.Lock()
	conn.state = connection.StateClosed
	conn.mu.Unlock()
	conn.events <- connection.Event{Type: connection.EventClosed, Err: errors.New("connection reset")}

	v := waitView(t, mc, func(v View) bool { return v.InitError != "" })
	assert.Equal(t, "WebSocket error: connection reset", v.InitError)
	assert.False(t, v.Enabled)

	n, err := mc.SendMessage(context.Background(), "hi")
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestWatch(t *testing.T) {
	mc, conn, _ := ready(t, Options{})

	views, cancel, err := mc.Watch()
	require.NoError(t, err)
	first := <-views
	assert.Len(t, first.Sessions, 2)

	_, err = mc.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	select {
	case v := <-views:
		assert.True(t, v.Running)
	case <-time.After(time.Second):
		t.Fatal("no view after send")
	}
	assert.Len(t, conn.sentFrames(), 2)

	cancel()
	_, open := <-views
	assert.False(t, open)
	cancel()
}

func TestUnmount(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := newFakeConn()
	mc := New(conn, Options{Catalog: stubCatalog{models: []model.Model{textModel}}}, logger.NewNop())
	require.NoError(t, mc.Mount(context.Background()))
	assert.ErrorIs(t, mc.Mount(context.Background()), ErrAlreadyMounted)

	views, _, err := mc.Watch()
	require.NoError(t, err)

	mc.Unmount()
	mc.Unmount()

	assert.True(t, conn.torn)
	for range views {
	}
	_, err = mc.View()
	assert.ErrorIs(t, err, ErrUnmounted)
	assert.ErrorIs(t, mc.Mount(context.Background()), ErrUnmounted)
	assert.ErrorIs(t, mc.ClearAll(), ErrUnmounted)
}

func TestOperationsBeforeMount(t *testing.T) {
	mc := New(newFakeConn(), Options{}, logger.NewNop())

	_, err := mc.AddSession()
	assert.ErrorIs(t, err, ErrUnmounted)
	mc.Unmount()
}
