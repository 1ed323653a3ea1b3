package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chapter-quiz-service/internal/achievements"
	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/kv"
	"chapter-quiz-service/internal/logging"
	"chapter-quiz-service/internal/quiz"
	"chapter-quiz-service/internal/reconcile"
)

// SessionRepository abstracts where live sessions and their states are kept
// (in-memory, Redis, etc).
type SessionRepository interface {
	GetOrCreate(ctx context.Context, key string) *Session
	Get(ctx context.Context, key string) (*Session, bool)
	// Persist stores state after a transition; a complete state is discarded.
	Persist(ctx context.Context, key string, state quiz.State) error
	DeleteIfEmpty(key string)
}

// QuizRepository loads chapter content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, chapterKey string) (domain.QuizDefinition, error)
}

// Options tunes a QuizService. Zero values fall back to defaults.
type Options struct {
	Machine *quiz.Machine
	Rules   *achievements.Rules
	// Syncer and Queue are both nil when no remote store is configured.
	Syncer *reconcile.Syncer
	Queue  *reconcile.Queue
	Logger *slog.Logger
	Now    func() time.Time
}

// QuizService contains the quiz use cases of every connected device.
type QuizService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	devices  kv.Store
	machine  quiz.Machine
	rules    achievements.Rules
	syncer   *reconcile.Syncer
	queue    *reconcile.Queue
	logger   *slog.Logger
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
	loaded  sync.Map // device id -> struct{}
}

func NewQuizService(sessions SessionRepository, quizzes QuizRepository, devices kv.Store, opts Options) *QuizService {
	s := &QuizService{
		sessions: sessions,
		quizzes:  quizzes,
		devices:  devices,
		machine:  quiz.DefaultMachine,
		rules:    achievements.DefaultRules(),
		syncer:   opts.Syncer,
		queue:    opts.Queue,
		logger:   logging.OrDefault(opts.Logger),
		now:      opts.Now,
		locks:    make(map[string]*sync.Mutex),
	}
	if opts.Machine != nil {
		s.machine = *opts.Machine
	}
	if opts.Rules != nil {
		s.rules = *opts.Rules
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Update is the result of one command.
type Update struct {
	Snapshot   quiz.Snapshot `json:"snapshot"`
	Outcome    quiz.Outcome  `json:"outcome"`
	Completion *Completion   `json:"completion,omitempty"`
}

// SessionKey identifies the session of deviceID on chapter.
func SessionKey(deviceID string, chapter int) string {
	return deviceID + ":" + domain.ChapterKey(chapter)
}

// Start begins a fresh attempt, discarding any session in progress.
func (s *QuizService) Start(ctx context.Context, deviceID string, chapter int) (Update, error) {
	return s.dispatch(ctx, deviceID, chapter, quiz.Command{Type: quiz.CmdStart}, true)
}

// Retry begins a new attempt with fresh permutations.
func (s *QuizService) Retry(ctx context.Context, deviceID string, chapter int) (Update, error) {
	return s.dispatch(ctx, deviceID, chapter, quiz.Command{Type: quiz.CmdRetry}, true)
}

// Answer records a response for the current question.
func (s *QuizService) Answer(ctx context.Context, deviceID string, chapter int, r *quiz.Response) (Update, error) {
	return s.dispatch(ctx, deviceID, chapter, quiz.Command{Type: quiz.CmdAnswer, Response: r}, false)
}

// Hint reveals the next hint of the current question.
func (s *QuizService) Hint(ctx context.Context, deviceID string, chapter int) (Update, error) {
	return s.dispatch(ctx, deviceID, chapter, quiz.Command{Type: quiz.CmdHint}, false)
}

// Continue leaves feedback or moves past an answered question; on the last
// question it completes the attempt.
func (s *QuizService) Continue(ctx context.Context, deviceID string, chapter int) (Update, error) {
	return s.dispatch(ctx, deviceID, chapter, quiz.Command{Type: quiz.CmdContinue}, false)
}

// Prev goes back one question.
func (s *QuizService) Prev(ctx context.Context, deviceID string, chapter int) (Update, error) {
	return s.dispatch(ctx, deviceID, chapter, quiz.Command{Type: quiz.CmdPrev}, false)
}

// Subscribe returns a channel of snapshots for the device's chapter session.
// The caller must invoke the returned cancel function to avoid leaks.
// The first subscription of a device also loads it (see Load).
func (s *QuizService) Subscribe(ctx context.Context, deviceID string, chapter int) (<-chan quiz.Snapshot, func(), error) {
	s.Load(ctx, deviceID)
	def, err := s.quizzes.GetQuiz(ctx, domain.ChapterKey(chapter))
	if err != nil {
		return nil, nil, err
	}
	session := s.sessions.GetOrCreate(ctx, SessionKey(deviceID, chapter))
	ch, cancel := session.subscribe(def)
	return ch, cancel, nil
}

// Close drops the session once nobody is subscribed.
func (s *QuizService) Close(_ context.Context, deviceID string, chapter int) {
	s.sessions.DeleteIfEmpty(SessionKey(deviceID, chapter))
}

func (s *QuizService) dispatch(ctx context.Context, deviceID string, chapter int, cmd quiz.Command, create bool) (Update, error) {
	if deviceID == "" || chapter <= 0 {
		return Update{}, fmt.Errorf("%w: device %q chapter %d", domain.ErrInvalidInput, deviceID, chapter)
	}
	def, err := s.quizzes.GetQuiz(ctx, domain.ChapterKey(chapter))
	if err != nil {
		return Update{}, err
	}
	if def.Chapter == 0 {
		def.Chapter = chapter
	}
	if cmd.Type == quiz.CmdAnswer {
		if err := s.validateAnswer(ctx, deviceID, chapter, def, cmd.Response); err != nil {
			return Update{}, err
		}
	}

	key := SessionKey(deviceID, chapter)
	var session *Session
	if create {
		session = s.sessions.GetOrCreate(ctx, key)
	} else {
		var ok bool
		if session, ok = s.sessions.Get(ctx, key); !ok {
			return Update{}, domain.ErrSessionNotFound
		}
	}

	snap, outcome, err := session.apply(s.machine, def, cmd, func(state quiz.State) error {
		return s.sessions.Persist(ctx, key, state)
	})
	if err != nil {
		return Update{}, err
	}
	update := Update{Snapshot: snap, Outcome: outcome}
	if outcome.Result != nil {
		completion, err := s.complete(ctx, deviceID, def, *outcome.Result)
		if err != nil {
			return update, err
		}
		update.Completion = &completion
	}
	return update, nil
}

// validateAnswer rejects a response whose shape does not fit the current question.
func (s *QuizService) validateAnswer(ctx context.Context, deviceID string, chapter int, def domain.QuizDefinition, r *quiz.Response) error {
	session, ok := s.sessions.Get(ctx, SessionKey(deviceID, chapter))
	if !ok {
		return domain.ErrSessionNotFound
	}
	state := session.State()
	if state.Phase != quiz.PhaseActive || state.Position >= len(state.QuestionOrder) {
		return nil // the reducer reports the transition error
	}
	qi := state.QuestionOrder[state.Position]
	if qi < 0 || qi >= len(def.Questions) {
		return nil
	}
	return quiz.ValidateResponse(def.Questions[qi], r)
}

func (s *QuizService) deviceLock(deviceID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[deviceID] = l
	}
	return l
}
