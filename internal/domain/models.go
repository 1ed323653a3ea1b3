package domain

import (
	"fmt"
	"time"
)

// QuestionKind identifies how a question is presented and judged.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindTrueFalse      QuestionKind = "true-false"
	KindScenario       QuestionKind = "scenario"
	KindMatching       QuestionKind = "matching"
	KindOrdering       QuestionKind = "ordering"
	KindFillBlank      QuestionKind = "fill-blank"
)

// HasOptions reports whether the kind shows a shuffled option list.
func (k QuestionKind) HasOptions() bool {
	return k == KindMultipleChoice || k == KindScenario
}

// Valid reports whether k is one of the known kinds.
func (k QuestionKind) Valid() bool {
	switch k {
	case KindMultipleChoice, KindTrueFalse, KindScenario, KindMatching, KindOrdering, KindFillBlank:
		return true
	}
	return false
}

// MatchPair is one left/right row of a matching question. Index i on the left
// is correctly matched to index i on the right.
type MatchPair struct {
	Left  string `json:"left" yaml:"left"`
	Right string `json:"right" yaml:"right"`
}

// Question is immutable content loaded per chapter.
type Question struct {
	Kind            QuestionKind `json:"kind" yaml:"kind"`
	Prompt          string       `json:"prompt" yaml:"prompt"`
	Options         []string     `json:"options,omitempty" yaml:"options,omitempty"`
	Pairs           []MatchPair  `json:"pairs,omitempty" yaml:"pairs,omitempty"`
	Items           []string     `json:"items,omitempty" yaml:"items,omitempty"`
	AcceptedAnswers []string     `json:"acceptedAnswers,omitempty" yaml:"acceptedAnswers,omitempty"`
	Explanation     string       `json:"explanation" yaml:"explanation"`
	Hints           []string     `json:"hints,omitempty" yaml:"hints,omitempty"`
	CorrectIndex    int          `json:"correctIndex,omitempty" yaml:"correctIndex,omitempty"` // multiple-choice/scenario, original option space
	CorrectBool     bool         `json:"correctBool,omitempty" yaml:"correctBool,omitempty"`   // true-false
	CorrectOrder    []int        `json:"correctOrder,omitempty" yaml:"correctOrder,omitempty"` // ordering; identity when empty
}

// ReferenceOrder returns the expected ordering response.
func (q Question) ReferenceOrder() []int {
	if len(q.CorrectOrder) > 0 {
		return q.CorrectOrder
	}
	order := make([]int, len(q.Items))
	for i := range order {
		order[i] = i
	}
	return order
}

// QuizDefinition is the ordered question list for one chapter.
type QuizDefinition struct {
	Chapter      int        `json:"chapter" yaml:"chapter"`
	Questions    []Question `json:"questions" yaml:"questions"`
	PassingScore int        `json:"passingScore" yaml:"passingScore"`
}

// QuestionResponse is the per-question line of a completed attempt.
type QuestionResponse struct {
	QuestionIndex int          `json:"questionIndex"`
	Kind          QuestionKind `json:"kind"`
	UserAnswer    string       `json:"userAnswer"`
	CorrectAnswer string       `json:"correctAnswer"`
	Correct       bool         `json:"correct"`
	HintsUsed     int          `json:"hintsUsed"`
}

// AttemptResult is produced once per completed session.
type AttemptResult struct {
	Chapter    int                `json:"chapter"`
	Correct    int                `json:"correct"`
	Total      int                `json:"total"`
	Percentage int                `json:"percentage"`
	HintsUsed  int                `json:"hintsUsed"`
	Responses  []QuestionResponse `json:"responses"`
}

// ChapterProgress is the ledger entry for one chapter. The best-score fields
// describe the single best attempt; Attempts, PercentageSum and AverageScore
// cover every attempt.
type ChapterProgress struct {
	Chapter            int       `json:"chapter"`
	BestScore          int       `json:"bestScore"`
	TotalQuestions     int       `json:"totalQuestions"`
	Percentage         int       `json:"percentage"`
	AdjustedPercentage int       `json:"adjustedPercentage"`
	HintsUsed          int       `json:"hintsUsed"`
	Attempts           int       `json:"attempts"`
	AverageScore       int       `json:"averageScore"`
	PercentageSum      int       `json:"percentageSum"`
	CompletedAt        time.Time `json:"completedAt"`
}

// AchievementID names an unlockable achievement.
type AchievementID string

const (
	AchievementFirstSteps   AchievementID = "first-steps"
	AchievementPerfectScore AchievementID = "perfect-score"
	AchievementScholar      AchievementID = "scholar"
	AchievementPhilosopher  AchievementID = "philosopher"
	AchievementStreakMaster AchievementID = "streak-master"
)

// AchievementStats is the free-form record kept per unlocked achievement.
type AchievementStats struct {
	UnlockedAt time.Time `json:"unlockedAt"`
	Chapter    int       `json:"chapter,omitempty"`
}

// AchievementLedger holds unlocked achievements and the study streak.
// Unlocked is append-only.
type AchievementLedger struct {
	Unlocked      map[AchievementID]AchievementStats `json:"unlocked"`
	LastStudyDate string                             `json:"lastStudyDate,omitempty"` // YYYY-MM-DD
	CurrentStreak int                                `json:"currentStreak"`
}

// Has reports whether id is unlocked.
func (l AchievementLedger) Has(id AchievementID) bool {
	_, ok := l.Unlocked[id]
	return ok
}

// SpacedRepetitionEntry is the SM-2 state for one chapter.
type SpacedRepetitionEntry struct {
	Chapter     int       `json:"chapter"`
	Ease        float64   `json:"ease"`
	Interval    int       `json:"interval"`
	Repetitions int       `json:"repetitions"`
	LastQuality int       `json:"lastQuality"`
	NextReview  time.Time `json:"nextReview"`
}

// AttemptSubmission is what the engine sends to the remote store after an attempt.
type AttemptSubmission struct {
	ID          string             `json:"id,omitempty" validate:"omitempty,uuid"`
	AnonymousID string             `json:"anonymousId" validate:"required"`
	Email       string             `json:"email,omitempty" validate:"omitempty,email"`
	Chapter     int                `json:"chapter" validate:"chapter"`
	Score       int                `json:"score" validate:"gte=0,ltefield=Total"`
	Total       int                `json:"total" validate:"gt=0"`
	Percentage  int                `json:"percentage" validate:"gte=0,lte=100"`
	HintsUsed   int                `json:"hintsUsed" validate:"gte=0"`
	Responses   []QuestionResponse `json:"responses,omitempty"`
	SubmittedAt time.Time          `json:"submittedAt"`
}

// RemoteAttempt is the best attempt the remote store knows for a chapter.
type RemoteAttempt struct {
	ID          string             `json:"id"`
	Identity    string             `json:"identity"`
	Email       string             `json:"email,omitempty"`
	Chapter     int                `json:"chapter"`
	Score       int                `json:"score"`
	Total       int                `json:"total"`
	Percentage  int                `json:"percentage"`
	HintsUsed   int                `json:"hintsUsed"`
	Responses   []QuestionResponse `json:"responses,omitempty"`
	SubmittedAt time.Time          `json:"submittedAt"`
}

// RemoteRecord is the remote store's view of one identity: best attempt per chapter.
type RemoteRecord struct {
	Identity string                `json:"identity"`
	Email    string                `json:"email,omitempty"`
	Chapters map[int]RemoteAttempt `json:"chapters"`
}

// Percentages returns chapter -> best percentage.
func (r RemoteRecord) Percentages() map[int]int {
	out := make(map[int]int, len(r.Chapters))
	for ch, a := range r.Chapters {
		out[ch] = a.Percentage
	}
	return out
}

// ChapterKey renders the zero-padded key used to fetch quiz content.
func ChapterKey(chapter int) string {
	return fmt.Sprintf("%02d", chapter)
}

// Percentage computes round(correct/total*100); total must be positive.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (correct*200 + total) / (2 * total)
}

// SyncRequest carries a device's pre-filtered ledger snapshot to the remote store.
type SyncRequest struct {
	AnonymousID string              `json:"anonymousId" validate:"required"`
	Email       string              `json:"email,omitempty" validate:"omitempty,email"`
	Attempts    []AttemptSubmission `json:"attempts" validate:"dive"`
}

// SyncReport tells which chapters the remote store accepted.
type SyncReport struct {
	Accepted []int `json:"accepted"`
	Skipped  []int `json:"skipped"`
}

// MergeRequest absorbs an anonymous identity into an authenticated one.
type MergeRequest struct {
	AnonymousID string `json:"anonymousId" validate:"required"`
	UserID      string `json:"userId" validate:"required,nefield=AnonymousID"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
}
