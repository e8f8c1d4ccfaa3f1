package orchestrator

import (
	"github.com/capitalize-ai/multichat/internal/catalog"
	"github.com/capitalize-ai/multichat/internal/connection"
	"github.com/capitalize-ai/multichat/internal/display"
	"github.com/capitalize-ai/multichat/internal/model"
)

// View is an immutable snapshot of the panel.
type View struct {
	State            connection.ReadyState `json:"state"`
	StateLabel       string                `json:"state_label"`
	Enabled          bool                  `json:"enabled"`
	Running          bool                  `json:"running"`
	AddEnabled       bool                  `json:"add_enabled"`
	InitError        string                `json:"init_error,omitempty"`
	Sessions         []model.ChatSession   `json:"sessions"`
	Rows             [][]model.HistoryItem `json:"rows"`
	ModelsStatus     catalog.Status        `json:"models_status"`
	WorkspacesStatus catalog.Status        `json:"workspaces_status"`
	FollowScroll     bool                  `json:"follow_scroll"`
}

// snapshot must run on the loop.
func (mc *MultiChat) snapshot() View {
	live := mc.registry.Sessions()
	sessions := make([]model.ChatSession, len(live))
	running := false
	for i, s := range live {
		sessions[i] = s.Clone()
		running = running || s.Running
	}

	state := mc.conn.State()
	return View{
		State:            state,
		StateLabel:       state.Label(),
		Enabled:          mc.coord.Enabled(),
		Running:          running,
		AddEnabled:       mc.addEnabled && len(live) < maxSessions,
		InitError:        mc.initErr,
		Sessions:         sessions,
		Rows:             display.Align(sessions),
		ModelsStatus:     mc.catalog.ModelsStatus,
		WorkspacesStatus: mc.catalog.WorkspacesStatus,
		FollowScroll:     mc.follow,
	}
}
