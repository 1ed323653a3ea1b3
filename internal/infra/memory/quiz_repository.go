package memory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"chapter-quiz-service/internal/domain"
)

// QuizLoader fetches chapter content by zero-padded chapter key.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, chapterKey string) (domain.QuizDefinition, error)
}

// QuizRepository caches chapter content with a jittered TTL. Misses are
// cached too, so an absent chapter does not hit the loader on every start.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.QuizDefinition
	missing   bool
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, chapterKey string) (domain.QuizDefinition, error) {
	if quiz, ok, err := r.cached(chapterKey); ok {
		return quiz, err
	}

	result, err, _ := r.sf.Do(chapterKey, func() (interface{}, error) {
		if quiz, ok, err := r.cached(chapterKey); ok {
			return quiz, err
		}

		quiz, err := r.loader.LoadQuiz(ctx, chapterKey)
		missing := errors.Is(err, domain.ErrQuizNotFound)
		if err != nil && !missing {
			return domain.QuizDefinition{}, err
		}

		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cache[chapterKey] = cachedQuiz{quiz: quiz, missing: missing, expiresAt: expiresAt}
		r.mu.Unlock()
		return quiz, err
	})
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	return result.(domain.QuizDefinition), nil
}

// Invalidate drops a cached chapter.
func (r *QuizRepository) Invalidate(chapterKey string) {
	r.mu.Lock()
	delete(r.cache, chapterKey)
	r.mu.Unlock()
}

func (r *QuizRepository) cached(chapterKey string) (domain.QuizDefinition, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[chapterKey]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.QuizDefinition{}, false, nil
	}
	if entry.missing {
		return domain.QuizDefinition{}, true, domain.ErrQuizNotFound
	}
	return entry.quiz, true, nil
}

// StaticQuizLoader serves chapters from an in-memory map.
type StaticQuizLoader struct {
	quizzes map[string]domain.QuizDefinition
}

func NewStaticQuizLoader(quizzes map[string]domain.QuizDefinition) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, chapterKey string) (domain.QuizDefinition, error) {
	if quiz, ok := l.quizzes[chapterKey]; ok && len(quiz.Questions) > 0 {
		return quiz, nil
	}
	return domain.QuizDefinition{}, domain.ErrQuizNotFound
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
