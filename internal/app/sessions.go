package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxUserIDAttempts = 8

type sessionEntry struct {
	UserID domain.UserID
	Cancel context.CancelFunc
}

// Sessions tracks live connections and keeps user IDs unique among them.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[domain.UserID]core.SessionID
	newID    func() domain.UserID
}

func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[domain.UserID]core.SessionID),
		newID:    domain.NewUserID,
	}
}

// Bind registers sid under a freshly drawn user ID, redrawing on collision.
func (s *Sessions) Bind(sid core.SessionID, cancel context.CancelFunc) (domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range maxUserIDAttempts {
		uid := s.newID()
		if _, taken := s.users[uid]; taken {
			log.Warn().Str("module", "app.sessions").Str("user", string(uid)).Msg("user id collision, redrawing")
			continue
		}
		s.sessions[sid] = &sessionEntry{UserID: uid, Cancel: cancel}
		s.users[uid] = sid
		log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("user", string(uid)).Msg("bound session")
		return uid, nil
	}
	return "", fmt.Errorf("bind session %s: %w", sid, domain.ErrUserIDTaken)
}

func (s *Sessions) Unbind(sid core.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sid]
	if !ok {
		return
	}
	delete(s.users, e.UserID)
	delete(s.sessions, sid)
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("unbind session")
}

func (s *Sessions) UserOf(sid core.SessionID) (domain.UserID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sid]
	if !ok {
		return "", false
	}
	return e.UserID, true
}

func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CancelAll cancels every live session's context and returns how many there were.
func (s *Sessions) CancelAll() int {
	s.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(s.sessions))
	for _, e := range s.sessions {
		if e.Cancel != nil {
			cancels = append(cancels, e.Cancel)
		}
	}
	s.mu.RUnlock()
	for _, cancel := range cancels {
		cancel()
	}
	log.Info().Str("module", "app.sessions").Int("count", len(cancels)).Msg("canceled sessions")
	return len(cancels)
}
