package spacedrep

import (
	"math"
	"time"

	"chapter-quiz-service/internal/domain"
)

const (
	InitialEase    = 2.5
	MinEase        = 1.3
	PassQuality    = 3
	MaxQuality     = 5
	firstInterval  = 1
	secondInterval = 6
)

// Quality maps an attempt percentage onto the 0-5 SM-2 scale.
func Quality(percentage int) int {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	return int(math.Round(float64(percentage*MaxQuality) / 100))
}

// Next recomputes the entry for chapter from prev (nil on first review) and
// a new attempt percentage.
func Next(prev *domain.SpacedRepetitionEntry, chapter, percentage int, now time.Time) domain.SpacedRepetitionEntry {
	entry := domain.SpacedRepetitionEntry{
		Chapter:  chapter,
		Ease:     InitialEase,
		Interval: firstInterval,
	}
	if prev != nil {
		entry.Ease = prev.Ease
		entry.Interval = prev.Interval
		entry.Repetitions = prev.Repetitions
	}

	q := Quality(percentage)
	priorEase, priorInterval := entry.Ease, entry.Interval
	if q >= PassQuality {
		entry.Repetitions++
		switch entry.Repetitions {
		case 1:
			entry.Interval = firstInterval
		case 2:
			entry.Interval = secondInterval
		default:
			entry.Interval = int(math.Round(float64(priorInterval) * priorEase))
		}
	} else {
		entry.Repetitions = 0
		entry.Interval = firstInterval
	}
	if entry.Interval < 1 {
		entry.Interval = 1
	}

	miss := float64(MaxQuality - q)
	entry.Ease = math.Max(MinEase, priorEase+(0.1-miss*(0.08+miss*0.02)))
	entry.LastQuality = q
	entry.NextReview = now.AddDate(0, 0, entry.Interval)
	return entry
}
