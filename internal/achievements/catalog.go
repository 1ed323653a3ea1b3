package achievements

import "chapter-quiz-service/internal/domain"

// Badge is the display metadata of an achievement.
type Badge struct {
	ID          domain.AchievementID `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
}

// Catalog lists every achievement in display order.
func Catalog() []Badge {
	return []Badge{
		{ID: domain.AchievementFirstSteps, Title: "First Steps", Description: "Complete your first chapter quiz"},
		{ID: domain.AchievementPerfectScore, Title: "Perfect Score", Description: "Answer every question of a quiz correctly"},
		{ID: domain.AchievementScholar, Title: "Scholar", Description: "Master 10 chapters (90% or better, at least twice attempted)"},
		{ID: domain.AchievementPhilosopher, Title: "Philosopher", Description: "Master every chapter"},
		{ID: domain.AchievementStreakMaster, Title: "Streak Master", Description: "Study seven days in a row"},
	}
}

// Lookup returns the badge for id.
func Lookup(id domain.AchievementID) (Badge, bool) {
	for _, b := range Catalog() {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}
