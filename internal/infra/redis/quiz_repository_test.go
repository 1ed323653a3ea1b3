package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/infra/memory"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.QuizDefinition{
			"01": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(client, loader, time.Minute)

	_, err = repo.GetQuiz(context.Background(), "01")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:01:content") {
		t.Fatalf("expected cached content key")
	}
	if ttl := mr.TTL("quiz:01:content"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	// served from Redis, loader untouched
	quiz, err := repo.GetQuiz(context.Background(), "01")
	if err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].Options[1] != "4" || quiz.PassingScore != 70 {
		t.Fatalf("cached quiz lost content: %+v", quiz)
	}
}

func TestQuizRepositoryCachesMissingChapter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(nil)}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetQuiz(context.Background(), "09"); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected ErrQuizNotFound, got %v", err)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("expected miss cached, loader calls=%d", loader.calls)
	}

	if err := repo.Invalidate(context.Background(), "09"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("quiz:09:content") {
		t.Fatalf("expected key removed")
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, chapterKey string) (domain.QuizDefinition, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, chapterKey)
}

func sampleQuiz() domain.QuizDefinition {
	return domain.QuizDefinition{
		Chapter:      1,
		PassingScore: 70,
		Questions: []domain.Question{
			{
				Kind:         domain.KindMultipleChoice,
				Prompt:       "What is 2 + 2?",
				Options:      []string{"3", "4", "5"},
				CorrectIndex: 1,
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
