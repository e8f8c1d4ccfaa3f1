package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/multichat/internal/model"
)

func newPanel(t *testing.T, n int) *Registry {
	t.Helper()
	r := New()
	for i := 0; i < n; i++ {
		_, err := r.Add()
		require.NoError(t, err)
	}
	return r
}

func TestAddRefusesPastMaximum(t *testing.T) {
	r := newPanel(t, MaxSessions)

	_, err := r.Add()
	assert.ErrorIs(t, err, ErrPanelFull)
	assert.Equal(t, MaxSessions, r.Len())
}

func TestAddAssignsDefaults(t *testing.T) {
	r := New()
	s, err := r.Add()
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, model.DefaultConfiguration(), s.Configuration)
	assert.Empty(t, s.MessageHistory)
	assert.False(t, s.Running)
	assert.Nil(t, s.Model)

	other, err := r.Add()
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.ID)
}

func TestRemoveRefusesAtMinimum(t *testing.T) {
	r := newPanel(t, MinSessions)
	id := r.Sessions()[0].ID

	assert.ErrorIs(t, r.Remove(id), ErrPanelMinimum)
	assert.Equal(t, MinSessions, r.Len())
}

func TestRemoveRefusesWithAnyHistory(t *testing.T) {
	r := newPanel(t, 3)
	sessions := r.Sessions()
	sessions[2].BeginTurn("hi")

	assert.ErrorIs(t, r.Remove(sessions[0].ID), ErrHistoryNotEmpty)
	assert.ErrorIs(t, r.Remove(sessions[2].ID), ErrHistoryNotEmpty)
	assert.Equal(t, 3, r.Len())
}

func TestRemoveKeepsPanelOrder(t *testing.T) {
	r := newPanel(t, 4)
	before := r.Sessions()

	require.NoError(t, r.Remove(before[1].ID))

	after := r.Sessions()
	require.Len(t, after, 3)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[2].ID, after[1].ID)
	assert.Equal(t, before[3].ID, after[2].ID)
	assert.ErrorIs(t, r.Remove("missing"), ErrSessionNotFound)
}

func TestClearAllRegeneratesIdentifiers(t *testing.T) {
	r := newPanel(t, 2)
	old := r.Sessions()
	oldIDs := []string{old[0].ID, old[1].ID}
	old[0].BeginTurn("hi")
	old[0].Running = true

	ids := r.ClearAll()

	require.Len(t, ids, 2)
	for i, s := range r.Sessions() {
		assert.Equal(t, ids[i], s.ID)
		assert.NotEqual(t, oldIDs[i], s.ID)
		assert.Empty(t, s.MessageHistory)
		assert.False(t, s.Running)
		assert.False(t, r.Has(oldIDs[i]))
	}
}

func TestObserversNotifiedOnMutation(t *testing.T) {
	r := New()
	calls := 0
	r.OnChange(func() { calls++ })

	s, _ := r.Add()
	_, _ = r.Add()
	require.NoError(t, r.SelectModel(s.ID, model.ModelRef{Provider: "p", Name: "m"}, nil))
	require.NoError(t, r.SelectWorkspace(s.ID, &model.WorkspaceRef{ID: "w"}))
	require.NoError(t, r.Configure(s.ID, model.DefaultConfiguration()))
	r.ClearAll()

	assert.Equal(t, 6, calls)
}

func TestSelectModelValidation(t *testing.T) {
	r := newPanel(t, 2)
	id := r.Sessions()[0].ID
	meta := &model.Model{Provider: "p", Name: "m", OutputModalities: []model.Modality{model.ModalityImage}}

	assert.ErrorIs(t, r.SelectModel(id, model.ModelRef{}, nil), ErrModelNotSelected)
	assert.ErrorIs(t, r.SelectModel("missing", meta.Ref(), meta), ErrSessionNotFound)
	require.NoError(t, r.SelectModel(id, meta.Ref(), meta))

	s, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, "p::m", s.Model.Value())
	assert.Same(t, meta, s.ModelMetadata)
}

func TestUpdateUnknownSession(t *testing.T) {
	r := newPanel(t, 2)
	called := false
	assert.False(t, r.Update("missing", func(*model.ChatSession) { called = true }))
	assert.False(t, called)
}
