package app

import (
	"sort"
	"sync"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

// SessionStore holds at most one session per buyer. Sessions live in memory
// only and are lost on restart.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]domain.BuyerSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]domain.BuyerSession)}
}

// Put creates or overwrites the buyer's session. A session in a terminal
// state removes the buyer's entry instead.
func (s *SessionStore) Put(session domain.BuyerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.State.IsTerminal() {
		delete(s.sessions, session.BuyerID)
	} else {
		s.sessions[session.BuyerID] = session
	}
	activeSessionsGauge.Set(float64(len(s.sessions)))
}

func (s *SessionStore) Get(buyerID int64) (domain.BuyerSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[buyerID]
	return session, ok
}

func (s *SessionStore) Delete(buyerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, buyerID)
	activeSessionsGauge.Set(float64(len(s.sessions)))
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Snapshot returns a copy of all sessions ordered by buyer id.
func (s *SessionStore) Snapshot() []domain.BuyerSession {
	s.mu.Lock()
	out := make([]domain.BuyerSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].BuyerID < out[j].BuyerID })
	return out
}
