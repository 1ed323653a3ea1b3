package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chapter-quiz-service/internal/app"
	"chapter-quiz-service/internal/quiz"
)

// SessionStore keeps live sessions in process for broadcast and mirrors each
// session state to Redis with a TTL, so a device that reconnects after a
// restart resumes where it left off. Complete states are removed.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(ctx context.Context, key string) *app.Session {
	if session, ok := s.Get(ctx, key); ok {
		return session
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session
	}
	session := app.NewSession(key)
	s.sessions[key] = session
	return session
}

// Get returns the live session or one restored from Redis.
func (s *SessionStore) Get(ctx context.Context, key string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return session, true
	}

	state, ok := s.load(ctx, key)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, true
	}
	session = app.RestoreSession(key, state)
	s.sessions[key] = session
	return session, true
}

func (s *SessionStore) Persist(ctx context.Context, key string, state quiz.State) error {
	if state.Phase == quiz.PhaseComplete {
		return s.client.Del(ctx, s.key(key)).Err()
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	return s.client.Set(ctx, s.key(key), raw, s.ttl).Err()
}

// DeleteIfEmpty drops the in-process session; the Redis copy lives on until
// its TTL so the device can resume.
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

func (s *SessionStore) load(ctx context.Context, key string) (quiz.State, bool) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		return quiz.State{}, false
	}
	var state quiz.State
	if err := json.Unmarshal(raw, &state); err != nil || state.Phase != quiz.PhaseActive {
		return quiz.State{}, false
	}
	return state, true
}

func (s *SessionStore) key(key string) string {
	return "quiz:session:" + key
}
