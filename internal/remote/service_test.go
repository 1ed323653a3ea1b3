package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/infra/memory"
	"chapter-quiz-service/internal/logging"
	"chapter-quiz-service/internal/remote"
)

func newService() *remote.Service {
	return remote.NewService(memory.NewRemoteStore(), remote.NewValidator(20), logging.Discard())
}

func submit(t *testing.T, s *remote.Service, identity string, chapter, pct int) {
	t.Helper()
	require.NoError(t, s.SubmitAttempt(context.Background(), domain.AttemptSubmission{
		AnonymousID: identity,
		Chapter:     chapter,
		Score:       pct / 10,
		Total:       10,
		Percentage:  pct,
		SubmittedAt: time.Now(),
	}))
}

func TestMergeCopiesBetterChaptersAndDeletesAnonymous(t *testing.T) {
	ctx := context.Background()
	s := newService()
	submit(t, s, "anon-1", 3, 85)
	submit(t, s, "anon-1", 4, 30)
	submit(t, s, "user-1", 3, 60)
	submit(t, s, "user-1", 4, 50)

	rec, err := s.Merge(ctx, domain.MergeRequest{AnonymousID: "anon-1", UserID: "user-1", Email: "u@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 85, rec.Chapters[3].Percentage)
	assert.Equal(t, 50, rec.Chapters[4].Percentage)
	assert.Equal(t, "u@example.com", rec.Email)

	_, err = s.Record(ctx, "anon-1")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestMergeRekeysWhenUserIsNew(t *testing.T) {
	ctx := context.Background()
	s := newService()
	submit(t, s, "anon-2", 1, 70)
	submit(t, s, "anon-2", 2, 40)

	rec, err := s.Merge(ctx, domain.MergeRequest{AnonymousID: "anon-2", UserID: "user-2"})
	require.NoError(t, err)
	assert.Len(t, rec.Chapters, 2)
	assert.Equal(t, "user-2", rec.Chapters[1].Identity)

	_, err = s.Record(ctx, "anon-2")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestMergeWithoutAnonymousRecord(t *testing.T) {
	s := newService()
	submit(t, s, "user-3", 1, 70)
	rec, err := s.Merge(context.Background(), domain.MergeRequest{AnonymousID: "anon-3", UserID: "user-3"})
	require.NoError(t, err)
	assert.Equal(t, 70, rec.Chapters[1].Percentage)
}

func TestBulkSyncAppliesHigherWins(t *testing.T) {
	ctx := context.Background()
	s := newService()
	submit(t, s, "anon-4", 1, 90)

	req := domain.SyncRequest{AnonymousID: "anon-4", Attempts: []domain.AttemptSubmission{
		{AnonymousID: "anon-4", Chapter: 1, Score: 8, Total: 10, Percentage: 80},
		{AnonymousID: "anon-4", Chapter: 2, Score: 7, Total: 10, Percentage: 70},
	}}
	report, err := s.BulkSync(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, report.Accepted)
	assert.Equal(t, []int{1}, report.Skipped)

	report, err = s.BulkSync(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, report.Accepted)

	rec, err := s.Progress(ctx, "anon-4")
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 90, 2: 70}, rec.Percentages())
}

func TestBestKeepsEarliestOnTies(t *testing.T) {
	ctx := context.Background()
	s := newService()
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{early.Add(time.Hour), early} {
		require.NoError(t, s.SubmitAttempt(ctx, domain.AttemptSubmission{
			AnonymousID: "anon-5", Chapter: 1, Score: 7, Total: 10, Percentage: 70, HintsUsed: i, SubmittedAt: at,
		}))
	}
	rec, err := s.Progress(ctx, "anon-5")
	require.NoError(t, err)
	assert.True(t, rec.Chapters[1].SubmittedAt.Equal(early))
}

func TestValidationRejectsBadInput(t *testing.T) {
	s := newService()
	err := s.SubmitAttempt(context.Background(), domain.AttemptSubmission{
		Chapter: 21, Score: 11, Total: 10, Percentage: 120, Email: "nope",
	})
	var verrs remote.ValidationErrors
	require.True(t, errors.As(err, &verrs), "got %v", err)

	fields := map[string]string{}
	for _, fe := range verrs {
		fields[fe.Field] = fe.Rule
	}
	assert.Equal(t, "required", fields["anonymousId"])
	assert.Equal(t, "chapter", fields["chapter"])
	assert.Equal(t, "ltefield", fields["score"])
	assert.Equal(t, "lte", fields["percentage"])
	assert.Equal(t, "email", fields["email"])

	_, err = s.Merge(context.Background(), domain.MergeRequest{AnonymousID: "same", UserID: "same"})
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "nefield", verrs[0].Rule)

	_, err = s.Progress(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecordsListsEveryIdentity(t *testing.T) {
	s := newService()
	submit(t, s, "b", 1, 50)
	submit(t, s, "a", 2, 60)
	submit(t, s, "a", 2, 80)

	recs, err := s.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].Identity)
	assert.Equal(t, 80, recs[0].Chapters[2].Percentage)
	assert.Equal(t, "b", recs[1].Identity)
}
