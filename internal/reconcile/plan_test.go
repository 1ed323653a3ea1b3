package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chapter-quiz-service/internal/domain"
)

func TestPlanSyncHigherWins(t *testing.T) {
	local := map[int]int{1: 80, 2: 60, 3: 70, 4: 50}
	remote := map[int]int{1: 70, 2: 60, 3: 90}

	assert.Equal(t, []int{1, 4}, PlanSync(local, remote))
	assert.Empty(t, PlanSync(map[int]int{}, remote))
	assert.Equal(t, []int{2}, PlanSync(map[int]int{2: 10}, nil))
}

func TestPlanSyncIsIdempotent(t *testing.T) {
	local := map[int]int{1: 80, 5: 100}
	remote := map[int]int{1: 40}
	for _, ch := range PlanSync(local, remote) {
		remote[ch] = local[ch]
	}
	assert.Empty(t, PlanSync(local, remote))
}

func TestLocalPercentagesSkipsEmptyEntries(t *testing.T) {
	got := LocalPercentages(map[int]domain.ChapterProgress{
		1: {Chapter: 1, Percentage: 70, Attempts: 1, TotalQuestions: 10},
		2: {Chapter: 2},
	})
	assert.Equal(t, map[int]int{1: 70}, got)
}

func record(identity string, pcts map[int]int) domain.RemoteRecord {
	r := domain.RemoteRecord{Identity: identity, Chapters: map[int]domain.RemoteAttempt{}}
	for ch, p := range pcts {
		r.Chapters[ch] = domain.RemoteAttempt{Identity: identity, Chapter: ch, Percentage: p}
	}
	return r
}

func TestPlanMerge(t *testing.T) {
	anon := record("anon", map[int]int{3: 85, 4: 40, 5: 60})

	plan := PlanMerge(anon, nil)
	assert.True(t, plan.Rekey)
	assert.Empty(t, plan.Copy)

	auth := record("user", map[int]int{3: 60, 4: 40})
	plan = PlanMerge(anon, &auth)
	assert.False(t, plan.Rekey)
	assert.Equal(t, []int{3, 5}, plan.Copy)
}
