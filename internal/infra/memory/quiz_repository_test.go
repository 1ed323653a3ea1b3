package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chapter-quiz-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.QuizDefinition{
			"01": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	quiz, err := repo.GetQuiz(context.Background(), "01")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if quiz.Chapter != 1 || len(quiz.Questions) != 1 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := repo.GetQuiz(context.Background(), "01"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryCachesMisses(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(nil)}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := repo.GetQuiz(context.Background(), "07"); !errors.Is(err, domain.ErrQuizNotFound) {
			t.Fatalf("expected ErrQuizNotFound, got %v", err)
		}
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected miss cached, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.QuizDefinition{"01": sampleQuiz()}),
	}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuiz(context.Background(), "01")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "01")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}

	repo.Invalidate("01")
	_, _ = repo.GetQuiz(context.Background(), "01")
	if loader.calls.Load() != 3 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls.Load())
	}
}

func TestStaticLoaderTreatsEmptyChapterAsMissing(t *testing.T) {
	loader := NewStaticQuizLoader(map[string]domain.QuizDefinition{"02": {Chapter: 2}})
	if _, err := loader.LoadQuiz(context.Background(), "02"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, chapterKey string) (domain.QuizDefinition, error) {
	l.calls.Add(1)
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
				Explanation:  "Two pairs make four.",
			},
		},
	}
}
