package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"chapter-quiz-service/internal/domain"
)

// missingMarker is cached for chapters the loader does not know.
const missingMarker = "-"

// QuizLoader fetches chapter content by zero-padded chapter key.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, chapterKey string) (domain.QuizDefinition, error)
}

// QuizRepository caches chapter content as JSON in Redis and falls back to a
// loader on miss. Keys: quiz:{chapterKey}:content.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, chapterKey string) (domain.QuizDefinition, error) {
	if quiz, ok, err := r.cached(ctx, chapterKey); ok {
		return quiz, err
	}

	result, err, _ := r.sf.Do(chapterKey, func() (interface{}, error) {
		// another caller may have filled the cache meanwhile
		if quiz, ok, err := r.cached(ctx, chapterKey); ok {
			return quiz, err
		}

		quiz, err := r.loader.LoadQuiz(ctx, chapterKey)
		missing := errors.Is(err, domain.ErrQuizNotFound)
		if err != nil && !missing {
			return domain.QuizDefinition{}, err
		}

		value := missingMarker
		if !missing {
			raw, merr := json.Marshal(quiz)
			if merr != nil {
				return domain.QuizDefinition{}, merr
			}
			value = string(raw)
		}
		// cache write failures only cost a reload
		_ = r.client.Set(ctx, r.contentKey(chapterKey), value, r.ttlWithJitter()).Err()
		return quiz, err
	})
	if err != nil {
		return domain.QuizDefinition{}, err
	}
	return result.(domain.QuizDefinition), nil
}

// Invalidate drops a cached chapter.
func (r *QuizRepository) Invalidate(ctx context.Context, chapterKey string) error {
	return r.client.Del(ctx, r.contentKey(chapterKey)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, chapterKey string) (domain.QuizDefinition, bool, error) {
	raw, err := r.client.Get(ctx, r.contentKey(chapterKey)).Result()
	if err != nil {
		return domain.QuizDefinition{}, false, nil
	}
	if raw == missingMarker {
		return domain.QuizDefinition{}, true, domain.ErrQuizNotFound
	}
	var quiz domain.QuizDefinition
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return domain.QuizDefinition{}, false, nil
	}
	return quiz, true, nil
}

func (r *QuizRepository) contentKey(chapterKey string) string {
	return "quiz:" + chapterKey + ":content"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
