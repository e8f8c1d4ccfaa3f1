package display

// ScrollState decides when the view should jump to the newest row. It only
// records flags and never blocks message processing.
type ScrollState struct {
	userHasScrolled       bool
	skipNextHistoryUpdate bool
	skipNextScrollEvent   bool
}

// ResetUserScroll resumes following new content.
func (s *ScrollState) ResetUserScroll() {
	s.userHasScrolled = false
}

// SkipNextHistoryUpdate suppresses following for the next history change.
func (s *ScrollState) SkipNextHistoryUpdate() {
	s.skipNextHistoryUpdate = true
}

// OnHistoryChange reports whether the view should scroll to the bottom after
// the histories changed to rows rows.
func (s *ScrollState) OnHistoryChange(rows int) bool {
	if s.skipNextHistoryUpdate {
		s.skipNextHistoryUpdate = false
		return false
	}
	if s.userHasScrolled || rows == 0 {
		return false
	}
	// the scroll we are about to trigger must not count as a user scroll
	s.skipNextScrollEvent = true
	return true
}

// OnScrollEvent records a scroll observed by the view.
func (s *ScrollState) OnScrollEvent(atBottom bool) {
	if s.skipNextScrollEvent {
		s.skipNextScrollEvent = false
		return
	}
	s.userHasScrolled = !atBottom
}

// Following reports whether new content is currently followed.
func (s *ScrollState) Following() bool {
	return !s.userHasScrolled
}
