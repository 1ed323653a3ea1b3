package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/logging"
)

// Remote is the remote progress store as seen by a device.
type Remote interface {
	Progress(ctx context.Context, identity string) (domain.RemoteRecord, error)
	SubmitAttempt(ctx context.Context, sub domain.AttemptSubmission) error
	BulkSync(ctx context.Context, req domain.SyncRequest) (domain.SyncReport, error)
	Merge(ctx context.Context, req domain.MergeRequest) (domain.RemoteRecord, error)
}

// Syncer pushes local progress to the remote store. It never writes to the
// local ledger.
type Syncer struct {
	remote Remote
	logger *slog.Logger
	merges singleflight.Group

	mu     sync.Mutex
	synced map[string]struct{}
}

func NewSyncer(remote Remote, logger *slog.Logger) *Syncer {
	return &Syncer{
		remote: remote,
		logger: logging.OrDefault(logger),
		synced: make(map[string]struct{}),
	}
}

// BulkSync submits every local chapter that beats the remote best for
// identity. It returns the submitted chapters; a second call without new
// local attempts submits nothing.
func (s *Syncer) BulkSync(ctx context.Context, identity, email string, progress map[int]domain.ChapterProgress) ([]int, error) {
	record, err := s.remote.Progress(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("fetch remote progress: %w", err)
	}
	chapters := PlanSync(LocalPercentages(progress), record.Percentages())
	if len(chapters) == 0 {
		return nil, nil
	}

	req := domain.SyncRequest{AnonymousID: identity, Email: email}
	for _, ch := range chapters {
		req.Attempts = append(req.Attempts, SubmissionFromProgress(identity, email, progress[ch]))
	}
	report, err := s.remote.BulkSync(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bulk sync: %w", err)
	}
	s.logger.Info("bulk sync done", "identity", identity, "accepted", len(report.Accepted), "skipped", len(report.Skipped))
	return chapters, nil
}

// SyncOnce runs BulkSync the first time it is called for identity in this
// process. Later calls are no-ops whatever the outcome of the first.
func (s *Syncer) SyncOnce(ctx context.Context, identity, email string, progress map[int]domain.ChapterProgress) ([]int, error) {
	s.mu.Lock()
	if _, ok := s.synced[identity]; ok {
		s.mu.Unlock()
		return nil, nil
	}
	s.synced[identity] = struct{}{}
	s.mu.Unlock()
	return s.BulkSync(ctx, identity, email, progress)
}

// Submit sends a single completed attempt.
func (s *Syncer) Submit(ctx context.Context, sub domain.AttemptSubmission) error {
	if err := s.remote.SubmitAttempt(ctx, sub); err != nil {
		return fmt.Errorf("submit attempt: %w", err)
	}
	return nil
}

// Merge absorbs the anonymous identity into userID. Concurrent calls for the
// same pair share one remote request.
func (s *Syncer) Merge(ctx context.Context, req domain.MergeRequest) (domain.RemoteRecord, error) {
	key := req.AnonymousID + "->" + req.UserID
	v, err, _ := s.merges.Do(key, func() (interface{}, error) {
		return s.remote.Merge(ctx, req)
	})
	if err != nil {
		return domain.RemoteRecord{}, fmt.Errorf("merge identity: %w", err)
	}
	s.logger.Info("identity merged", "identity", req.AnonymousID, "user", req.UserID)
	return v.(domain.RemoteRecord), nil
}

// SubmissionFromProgress converts the best attempt of a ledger entry.
func SubmissionFromProgress(identity, email string, p domain.ChapterProgress) domain.AttemptSubmission {
	return domain.AttemptSubmission{
		AnonymousID: identity,
		Email:       email,
		Chapter:     p.Chapter,
		Score:       p.BestScore,
		Total:       p.TotalQuestions,
		Percentage:  p.Percentage,
		HintsUsed:   p.HintsUsed,
		SubmittedAt: p.CompletedAt,
	}
}

// SubmissionFromResult converts a freshly completed attempt.
func SubmissionFromResult(identity, email string, r domain.AttemptResult) domain.AttemptSubmission {
	return domain.AttemptSubmission{
		AnonymousID: identity,
		Email:       email,
		Chapter:     r.Chapter,
		Score:       r.Correct,
		Total:       r.Total,
		Percentage:  r.Percentage,
		HintsUsed:   r.HintsUsed,
		Responses:   r.Responses,
	}
}
