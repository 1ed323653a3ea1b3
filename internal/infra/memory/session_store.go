package memory

import (
	"context"
	"sync"

	"chapter-quiz-service/internal/app"
	"chapter-quiz-service/internal/quiz"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// States live only as long as the session object.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(_ context.Context, key string) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session
	}
	session := app.NewSession(key)
	s.sessions[key] = session
	return session
}

func (s *SessionStore) Get(_ context.Context, key string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

// Persist is a no-op: the session object already holds the state.
func (s *SessionStore) Persist(context.Context, string, quiz.State) error {
	return nil
}

func (s *SessionStore) DeleteIfEmpty(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[key]
	if !ok {
		return
	}
	if session.IsEmpty() {
		delete(s.sessions, key)
	}
}
