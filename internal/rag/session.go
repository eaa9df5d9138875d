package rag

import (
	"sync"

	"report-rag/internal/chromemdb"
	"report-rag/internal/models"
)

// Session carries the conversational state for one sequence of builds and
// questions: the current index and the accumulated turns. The pair only
// changes together under the session lock, so a build can never leave old
// turns attached to a new index. Asking holds the same lock end to end,
// which serializes turns within the session.
type Session struct {
	mu    sync.Mutex
	id    string
	index *chromemdb.Index
	turns []models.Turn
}

func NewSession() *Session {
	return &Session{}
}

// ID identifies the current build; empty until the first one succeeds.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Ready reports whether an index has been built.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index != nil
}

// History returns a copy of the turns so far.
func (s *Session) History() []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// install replaces the index and clears the conversation in one step.
func (s *Session) install(id string, index *chromemdb.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.index = index
	s.turns = nil
}
