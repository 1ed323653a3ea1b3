package achievements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/kv"
	"chapter-quiz-service/internal/logging"
)

const (
	recordKey     = "achievements"
	recordVersion = 1
)

type record struct {
	Version int `json:"version"`
	domain.AchievementLedger
}

// Tracker persists the achievement ledger of one device.
type Tracker struct {
	store  kv.Store
	rules  Rules
	logger *slog.Logger
}

func NewTracker(store kv.Store, rules Rules, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, rules: rules, logger: logging.OrDefault(logger)}
}

// Evaluate runs the rules after an attempt and stores the result.
func (t *Tracker) Evaluate(ctx context.Context, progress map[int]domain.ChapterProgress, attempt Attempt) (domain.AchievementLedger, []domain.AchievementID, error) {
	prev, err := t.Ledger(ctx)
	if err != nil {
		return domain.AchievementLedger{}, nil, err
	}
	next, unlocked := t.rules.Derive(prev, progress, attempt)
	if err := kv.SetJSON(ctx, t.store, recordKey, record{Version: recordVersion, AchievementLedger: next}); err != nil {
		return domain.AchievementLedger{}, nil, fmt.Errorf("save achievements: %w", err)
	}
	for _, id := range unlocked {
		t.logger.Info("achievement unlocked", "achievement", id, "chapter", attempt.Chapter)
	}
	return next, unlocked, nil
}

// Ledger returns the stored achievement ledger.
func (t *Tracker) Ledger(ctx context.Context) (domain.AchievementLedger, error) {
	var rec record
	ok, err := kv.GetJSON(ctx, t.store, recordKey, &rec)
	switch {
	case errors.Is(err, kv.ErrMalformed):
		t.logger.Warn("achievement ledger unreadable, starting empty", "error", err)
		return emptyLedger(), nil
	case err != nil:
		return domain.AchievementLedger{}, fmt.Errorf("load achievements: %w", err)
	case !ok:
		return emptyLedger(), nil
	case rec.Version > recordVersion:
		t.logger.Warn("achievement ledger written by a newer version, starting empty", "version", rec.Version)
		return emptyLedger(), nil
	}
	if rec.Unlocked == nil {
		rec.Unlocked = make(map[domain.AchievementID]domain.AchievementStats)
	}
	return rec.AchievementLedger, nil
}

func emptyLedger() domain.AchievementLedger {
	return domain.AchievementLedger{Unlocked: make(map[domain.AchievementID]domain.AchievementStats)}
}
