package achievements

import (
	"time"

	"chapter-quiz-service/internal/domain"
)

const dateLayout = "2006-01-02"

// Rules holds the thresholds of the achievement set.
type Rules struct {
	TotalChapters     int
	ScholarChapters   int
	MasteryPercentage int
	MasteryAttempts   int
	StreakDays        int
	Location          *time.Location // calendar used for streak days
}

// DefaultRules matches a twenty-chapter book.
func DefaultRules() Rules {
	return Rules{
		TotalChapters:     20,
		ScholarChapters:   10,
		MasteryPercentage: 90,
		MasteryAttempts:   2,
		StreakDays:        7,
		Location:          time.UTC,
	}
}

// Attempt describes the attempt that triggered an evaluation.
type Attempt struct {
	Chapter    int
	Percentage int
	At         time.Time
}

// Derive evaluates every rule against the full progress ledger. It never
// removes an unlocked achievement; the second return lists new unlocks in
// rule order.
func (r Rules) Derive(prev domain.AchievementLedger, progress map[int]domain.ChapterProgress, attempt Attempt) (domain.AchievementLedger, []domain.AchievementID) {
	next := domain.AchievementLedger{
		Unlocked:      make(map[domain.AchievementID]domain.AchievementStats, len(prev.Unlocked)+1),
		LastStudyDate: prev.LastStudyDate,
		CurrentStreak: prev.CurrentStreak,
	}
	for id, stats := range prev.Unlocked {
		next.Unlocked[id] = stats
	}
	next.LastStudyDate, next.CurrentStreak = r.advanceStreak(prev.LastStudyDate, prev.CurrentStreak, attempt.At)

	var unlocked []domain.AchievementID
	unlock := func(id domain.AchievementID, ok bool) {
		if !ok || next.Has(id) {
			return
		}
		next.Unlocked[id] = domain.AchievementStats{UnlockedAt: attempt.At, Chapter: attempt.Chapter}
		unlocked = append(unlocked, id)
	}

	mastered := r.MasteredChapters(progress)
	unlock(domain.AchievementFirstSteps, anyAttempted(progress))
	unlock(domain.AchievementPerfectScore, attempt.Percentage == 100)
	unlock(domain.AchievementScholar, mastered >= r.ScholarChapters)
	unlock(domain.AchievementPhilosopher, mastered >= r.TotalChapters)
	unlock(domain.AchievementStreakMaster, next.CurrentStreak >= r.StreakDays)
	return next, unlocked
}

// MasteredChapters counts chapters with a high best score and repeat attempts.
func (r Rules) MasteredChapters(progress map[int]domain.ChapterProgress) int {
	n := 0
	for _, p := range progress {
		if p.Percentage >= r.MasteryPercentage && p.Attempts >= r.MasteryAttempts {
			n++
		}
	}
	return n
}

// advanceStreak applies one study day: same day keeps the streak, the next
// calendar day extends it, anything else restarts at 1.
func (r Rules) advanceStreak(last string, streak int, at time.Time) (string, int) {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	todayKey := today.Format(dateLayout)

	lastDay, err := time.ParseInLocation(dateLayout, last, loc)
	if last == "" || err != nil {
		return todayKey, 1
	}
	switch {
	case todayKey == last:
		if streak < 1 {
			streak = 1
		}
		return last, streak
	case today.Before(lastDay):
		// clock went backwards; keep what we have
		return last, streak
	case lastDay.AddDate(0, 0, 1).Format(dateLayout) == todayKey:
		return todayKey, streak + 1
	}
	return todayKey, 1
}

func anyAttempted(progress map[int]domain.ChapterProgress) bool {
	for _, p := range progress {
		if p.Attempts > 0 {
			return true
		}
	}
	return false
}
