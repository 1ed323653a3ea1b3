package reconcile

import (
	"sort"

	"chapter-quiz-service/internal/domain"
)

// PlanSync returns, in ascending order, the chapters whose local percentage
// is strictly greater than the remote best. Chapters unknown to the remote are
// always included; ties keep the remote record.
func PlanSync(local map[int]int, remote map[int]int) []int {
	var chapters []int
	for ch, pct := range local {
		if best, ok := remote[ch]; ok && pct <= best {
			continue
		}
		chapters = append(chapters, ch)
	}
	sort.Ints(chapters)
	return chapters
}

// LocalPercentages flattens a progress ledger into chapter -> best percentage.
func LocalPercentages(progress map[int]domain.ChapterProgress) map[int]int {
	out := make(map[int]int, len(progress))
	for ch, p := range progress {
		if p.Attempts == 0 && p.TotalQuestions == 0 {
			continue
		}
		out[ch] = p.Percentage
	}
	return out
}

// MergePlan is the outcome of absorbing an anonymous record.
type MergePlan struct {
	// Rekey moves the anonymous record to the authenticated identity as is.
	Rekey bool
	// Copy lists chapters whose anonymous attempt beats the authenticated one.
	Copy []int
}

// PlanMerge decides how the anonymous record is absorbed. auth is nil when the
// authenticated identity has no remote record yet. Unless Rekey is set the
// caller deletes the anonymous record after copying.
func PlanMerge(anon domain.RemoteRecord, auth *domain.RemoteRecord) MergePlan {
	if auth == nil || len(auth.Chapters) == 0 {
		return MergePlan{Rekey: true}
	}
	return MergePlan{Copy: PlanSync(anon.Percentages(), auth.Percentages())}
}
