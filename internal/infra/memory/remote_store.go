package memory

import (
	"context"
	"sync"

	"chapter-quiz-service/internal/domain"
)

// RemoteStore is an in-memory remote.Store keeping full attempt history.
type RemoteStore struct {
	mu       sync.RWMutex
	attempts map[string][]domain.RemoteAttempt // identity -> history in insertion order
	ids      map[string]struct{}
}

func NewRemoteStore() *RemoteStore {
	return &RemoteStore{
		attempts: make(map[string][]domain.RemoteAttempt),
		ids:      make(map[string]struct{}),
	}
}

// Insert ignores an attempt whose id was already stored.
func (s *RemoteStore) Insert(_ context.Context, a domain.RemoteAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(a)
	return nil
}

func (s *RemoteStore) Best(_ context.Context, identity string) (domain.RemoteRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history, ok := s.attempts[identity]
	if !ok || len(history) == 0 {
		return domain.RemoteRecord{}, false, nil
	}
	record := domain.RemoteRecord{Identity: identity, Chapters: make(map[int]domain.RemoteAttempt)}
	for _, a := range history {
		if a.Email != "" {
			record.Email = a.Email
		}
		best, seen := record.Chapters[a.Chapter]
		if !seen || a.Percentage > best.Percentage ||
			(a.Percentage == best.Percentage && a.SubmittedAt.Before(best.SubmittedAt)) {
			record.Chapters[a.Chapter] = a
		}
	}
	return record, true, nil
}

func (s *RemoteStore) Rekey(_ context.Context, from, to, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts[from] {
		a.Identity = to
		if email != "" {
			a.Email = email
		}
		s.attempts[to] = append(s.attempts[to], a)
	}
	delete(s.attempts, from)
	return nil
}

func (s *RemoteStore) Absorb(_ context.Context, from string, copies []domain.RemoteAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range copies {
		s.insertLocked(a)
	}
	for _, a := range s.attempts[from] {
		delete(s.ids, a.ID)
	}
	delete(s.attempts, from)
	return nil
}

func (s *RemoteStore) Identities(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.attempts))
	for id, history := range s.attempts {
		if len(history) > 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *RemoteStore) insertLocked(a domain.RemoteAttempt) {
	if a.ID != "" {
		if _, dup := s.ids[a.ID]; dup {
			return
		}
		s.ids[a.ID] = struct{}{}
	}
	s.attempts[a.Identity] = append(s.attempts[a.Identity], a)
}
