package spacedrep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/kv"
	"chapter-quiz-service/internal/logging"
)

const (
	recordKey     = "spaced_repetition"
	recordVersion = 1
)

type record struct {
	Version int                                  `json:"version"`
	Entries map[int]domain.SpacedRepetitionEntry `json:"entries"`
}

// Scheduler keeps one SM-2 entry per chapter in the device store.
type Scheduler struct {
	store  kv.Store
	logger *slog.Logger
}

func NewScheduler(store kv.Store, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: store, logger: logging.OrDefault(logger)}
}

// RecordReview folds a completed attempt into the chapter's schedule.
func (s *Scheduler) RecordReview(ctx context.Context, chapter, percentage int, now time.Time) (domain.SpacedRepetitionEntry, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return domain.SpacedRepetitionEntry{}, err
	}
	var prev *domain.SpacedRepetitionEntry
	if e, ok := rec.Entries[chapter]; ok {
		prev = &e
	}
	entry := Next(prev, chapter, percentage, now)
	rec.Entries[chapter] = entry
	if err := kv.SetJSON(ctx, s.store, recordKey, rec); err != nil {
		return domain.SpacedRepetitionEntry{}, fmt.Errorf("save schedule: %w", err)
	}
	return entry, nil
}

// Get returns the entry for chapter, if tracked.
func (s *Scheduler) Get(ctx context.Context, chapter int) (domain.SpacedRepetitionEntry, bool, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return domain.SpacedRepetitionEntry{}, false, err
	}
	e, ok := rec.Entries[chapter]
	return e, ok, nil
}

// DueReviews returns entries whose next review is at or before now, earliest first.
func (s *Scheduler) DueReviews(ctx context.Context, now time.Time) ([]domain.SpacedRepetitionEntry, error) {
	rec, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	due := make([]domain.SpacedRepetitionEntry, 0)
	for _, e := range rec.Entries {
		if !e.NextReview.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextReview.Equal(due[j].NextReview) {
			return due[i].NextReview.Before(due[j].NextReview)
		}
		return due[i].Chapter < due[j].Chapter
	})
	return due, nil
}

func (s *Scheduler) load(ctx context.Context) (record, error) {
	var rec record
	ok, err := kv.GetJSON(ctx, s.store, recordKey, &rec)
	switch {
	case errors.Is(err, kv.ErrMalformed):
		s.logger.Warn("spaced repetition ledger unreadable, starting empty", "error", err)
		return emptyRecord(), nil
	case err != nil:
		return record{}, fmt.Errorf("load schedule: %w", err)
	case !ok:
		return emptyRecord(), nil
	case rec.Version > recordVersion:
		s.logger.Warn("spaced repetition ledger written by a newer version, starting empty", "version", rec.Version)
		return emptyRecord(), nil
	}
	if rec.Entries == nil {
		rec.Entries = make(map[int]domain.SpacedRepetitionEntry)
	}
	return rec, nil
}

func emptyRecord() record {
	return record{Version: recordVersion, Entries: make(map[int]domain.SpacedRepetitionEntry)}
}
