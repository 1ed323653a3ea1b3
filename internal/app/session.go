package app

import (
	"sync"
	"time"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/quiz"
)

// Session is the live quiz of one device on one chapter. All transitions run
// under its mutex, so each one completes before the next starts.
type Session struct {
	key       string
	createdAt time.Time
	now       func() time.Time

	mu          sync.Mutex
	state       quiz.State
	def         domain.QuizDefinition
	updatedAt   time.Time
	subscribers map[chan quiz.Snapshot]struct{}
}

// NewSession is exported for infrastructure layers that create sessions.
func NewSession(key string) *Session {
	return newSessionWithClock(key, quiz.State{}, time.Now)
}

// RestoreSession rebuilds a session from a persisted state.
func RestoreSession(key string, state quiz.State) *Session {
	return newSessionWithClock(key, state, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(key string, now func() time.Time) *Session {
	return newSessionWithClock(key, quiz.State{}, now)
}

func newSessionWithClock(key string, state quiz.State, now func() time.Time) *Session {
	return &Session{
		key:         key,
		createdAt:   now(),
		now:         now,
		state:       state,
		updatedAt:   now(),
		subscribers: make(map[chan quiz.Snapshot]struct{}),
	}
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// State returns a copy of the current state.
func (s *Session) State() quiz.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UpdatedAt reports when the last transition happened.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// IsEmpty reports whether nobody is subscribed.
func (s *Session) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers) == 0
}

// apply runs one command through the reducer. persist is called with the new
// state while the lock is still held, so persisted states keep their order.
func (s *Session) apply(m quiz.Machine, def domain.QuizDefinition, cmd quiz.Command, persist func(quiz.State) error) (quiz.Snapshot, quiz.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, outcome, err := m.Reduce(def, s.state, cmd)
	if err != nil {
		return quiz.Snapshot{}, quiz.Outcome{}, err
	}
	if persist != nil {
		if err := persist(next); err != nil {
			return quiz.Snapshot{}, quiz.Outcome{}, err
		}
	}
	s.state = next
	s.def = def
	s.updatedAt = s.now()
	return s.broadcastLocked(), outcome, nil
}

func (s *Session) subscribe(def domain.QuizDefinition) (<-chan quiz.Snapshot, func()) {
	ch := make(chan quiz.Snapshot, 8)

	s.mu.Lock()
	s.def = def
	s.subscribers[ch] = struct{}{}
	// the buffer is empty, so this cannot block while the lock is held
	ch <- quiz.TakeSnapshot(s.def, s.state)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() quiz.Snapshot {
	snap := quiz.TakeSnapshot(s.def, s.state)
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// slow subscriber: drop its oldest snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}
