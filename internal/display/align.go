// Package display projects session histories into a rectangular grid and
// tracks whether the view should follow new content.
package display

import (
	"github.com/capitalize-ai/multichat/internal/model"
)

// Align returns a row-major view of histories: row i holds, for each session
// in panel order, its i-th entry or an empty AI placeholder. The number of
// rows is the longest history. Entries are copies; sessions are not touched.
func Align(sessions []model.ChatSession) [][]model.HistoryItem {
	rows := 0
	for _, s := range sessions {
		if n := len(s.MessageHistory); n > rows {
			rows = n
		}
	}

	out := make([][]model.HistoryItem, rows)
	for i := range out {
		row := make([]model.HistoryItem, len(sessions))
		for j, s := range sessions {
			if i < len(s.MessageHistory) {
				row[j] = s.MessageHistory[i].Clone()
			} else {
				row[j] = model.Placeholder()
			}
		}
		out[i] = row
	}
	return out
}
