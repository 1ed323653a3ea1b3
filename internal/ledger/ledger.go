package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/kv"
	"chapter-quiz-service/internal/logging"
	"chapter-quiz-service/internal/quiz"
)

const (
	recordKey     = "progress"
	recordVersion = 1
)

type record struct {
	Version  int                            `json:"version"`
	Chapters map[int]domain.ChapterProgress `json:"chapters"`
}

// Ledger is the on-device best-score record. Every mutation reads and writes
// the whole record.
type Ledger struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store kv.Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: store, logger: logging.OrDefault(logger), now: time.Now}
}

// NewWithClock is New with a fixed clock for tests.
func NewWithClock(store kv.Store, logger *slog.Logger, now func() time.Time) *Ledger {
	l := New(store, logger)
	l.now = now
	return l
}

// Record folds one finished attempt into the chapter entry.
func (l *Ledger) Record(ctx context.Context, chapter, correct, total, hintsUsed int) (domain.ChapterProgress, error) {
	if total <= 0 || correct < 0 || correct > total {
		return domain.ChapterProgress{}, fmt.Errorf("%w: score %d/%d", domain.ErrInvalidInput, correct, total)
	}
	rec, err := l.load(ctx)
	if err != nil {
		return domain.ChapterProgress{}, err
	}
	var existing *domain.ChapterProgress
	if p, ok := rec.Chapters[chapter]; ok {
		existing = &p
	}
	updated := Apply(existing, chapter, correct, total, hintsUsed, l.now())
	rec.Chapters[chapter] = updated
	if err := kv.SetJSON(ctx, l.store, recordKey, rec); err != nil {
		return domain.ChapterProgress{}, fmt.Errorf("save progress: %w", err)
	}
	return updated, nil
}

// Get returns the entry for chapter, if any.
func (l *Ledger) Get(ctx context.Context, chapter int) (domain.ChapterProgress, bool, error) {
	rec, err := l.load(ctx)
	if err != nil {
		return domain.ChapterProgress{}, false, err
	}
	p, ok := rec.Chapters[chapter]
	return p, ok, nil
}

// All returns every chapter entry.
func (l *Ledger) All(ctx context.Context) (map[int]domain.ChapterProgress, error) {
	rec, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Chapters, nil
}

func (l *Ledger) load(ctx context.Context) (record, error) {
	var rec record
	ok, err := kv.GetJSON(ctx, l.store, recordKey, &rec)
	switch {
	case errors.Is(err, kv.ErrMalformed):
		l.logger.Warn("progress ledger unreadable, starting empty", "error", err)
		return emptyRecord(), nil
	case err != nil:
		return record{}, fmt.Errorf("load progress: %w", err)
	case !ok:
		return emptyRecord(), nil
	case rec.Version > recordVersion:
		l.logger.Warn("progress ledger written by a newer version, starting empty", "version", rec.Version)
		return emptyRecord(), nil
	}
	if rec.Chapters == nil {
		rec.Chapters = make(map[int]domain.ChapterProgress)
	}
	return rec, nil
}

func emptyRecord() record {
	return record{Version: recordVersion, Chapters: make(map[int]domain.ChapterProgress)}
}

// Apply computes the next entry. Best fields move only on a strictly higher
// correct count; attempts and the running average always move.
func Apply(existing *domain.ChapterProgress, chapter, correct, total, hintsUsed int, now time.Time) domain.ChapterProgress {
	percentage := domain.Percentage(correct, total)

	var next domain.ChapterProgress
	if existing != nil {
		next = *existing
		if next.PercentageSum == 0 && next.Attempts > 0 {
			// entries that predate the sum field only carry the rounded mean
			next.PercentageSum = next.AverageScore * next.Attempts
		}
	}
	next.Chapter = chapter
	if existing == nil || correct > existing.BestScore {
		next.BestScore = correct
		next.TotalQuestions = total
		next.Percentage = percentage
		next.AdjustedPercentage = quiz.AdjustedPercentage(percentage, hintsUsed)
		next.HintsUsed = hintsUsed
		next.CompletedAt = now
	}
	next.Attempts++
	next.PercentageSum += percentage
	next.AverageScore = roundDiv(next.PercentageSum, next.Attempts)
	return next
}

func roundDiv(sum, n int) int {
	if n <= 0 {
		return 0
	}
	return (2*sum + n) / (2 * n)
}
