package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/logging"
	"chapter-quiz-service/internal/reconcile"
)

// Store persists attempt history per identity.
type Store interface {
	// Insert appends an attempt to the identity's history.
	Insert(ctx context.Context, a domain.RemoteAttempt) error
	// Best returns the highest-percentage attempt per chapter; ties keep the
	// earliest. ok is false when the identity has no attempts.
	Best(ctx context.Context, identity string) (domain.RemoteRecord, bool, error)
	// Rekey moves every attempt of from to to.
	Rekey(ctx context.Context, from, to, email string) error
	// Absorb inserts copies and deletes every attempt of from atomically.
	Absorb(ctx context.Context, from string, copies []domain.RemoteAttempt) error
	// Identities lists every identity with at least one attempt.
	Identities(ctx context.Context) ([]string, error)
}

// Service is the remote progress store: it validates requests and applies
// the higher-percentage-wins rule on its side as well.
type Service struct {
	store    Store
	validate *Validator
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, validate *Validator, logger *slog.Logger) *Service {
	return &Service{store: store, validate: validate, logger: logging.OrDefault(logger), now: time.Now}
}

// SubmitAttempt records one attempt as history. Best-score selection happens on read.
func (s *Service) SubmitAttempt(ctx context.Context, sub domain.AttemptSubmission) error {
	if err := s.validate.Struct(sub); err != nil {
		return err
	}
	if err := s.store.Insert(ctx, s.attemptFrom(sub.AnonymousID, sub)); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// BulkSync inserts each submitted chapter only when it beats the stored best.
func (s *Service) BulkSync(ctx context.Context, req domain.SyncRequest) (domain.SyncReport, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.SyncReport{}, err
	}
	record, _, err := s.store.Best(ctx, req.AnonymousID)
	if err != nil {
		return domain.SyncReport{}, fmt.Errorf("load best: %w", err)
	}

	local := make(map[int]int, len(req.Attempts))
	byChapter := make(map[int]domain.AttemptSubmission, len(req.Attempts))
	for _, a := range req.Attempts {
		if prev, ok := byChapter[a.Chapter]; ok && prev.Percentage >= a.Percentage {
			continue
		}
		byChapter[a.Chapter] = a
		local[a.Chapter] = a.Percentage
	}

	report := domain.SyncReport{Accepted: reconcile.PlanSync(local, record.Percentages())}
	accepted := make(map[int]struct{}, len(report.Accepted))
	for _, ch := range report.Accepted {
		accepted[ch] = struct{}{}
		sub := byChapter[ch]
		if sub.Email == "" {
			sub.Email = req.Email
		}
		if err := s.store.Insert(ctx, s.attemptFrom(req.AnonymousID, sub)); err != nil {
			return domain.SyncReport{}, fmt.Errorf("insert chapter %d: %w", ch, err)
		}
	}
	for ch := range byChapter {
		if _, ok := accepted[ch]; !ok {
			report.Skipped = append(report.Skipped, ch)
		}
	}
	sort.Ints(report.Skipped)
	return report, nil
}

// Progress returns the best attempt per chapter for identity. An unknown
// identity yields an empty record, not an error.
func (s *Service) Progress(ctx context.Context, identity string) (domain.RemoteRecord, error) {
	if identity == "" {
		return domain.RemoteRecord{}, fmt.Errorf("%w: identity is required", domain.ErrInvalidInput)
	}
	record, ok, err := s.store.Best(ctx, identity)
	if err != nil {
		return domain.RemoteRecord{}, fmt.Errorf("load best: %w", err)
	}
	if !ok {
		return domain.RemoteRecord{Identity: identity, Chapters: map[int]domain.RemoteAttempt{}}, nil
	}
	return record, nil
}

// Merge absorbs the anonymous record into the authenticated one and returns
// the authenticated record afterwards. The anonymous record never survives.
func (s *Service) Merge(ctx context.Context, req domain.MergeRequest) (domain.RemoteRecord, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.RemoteRecord{}, err
	}
	anon, anonOK, err := s.store.Best(ctx, req.AnonymousID)
	if err != nil {
		return domain.RemoteRecord{}, fmt.Errorf("load anonymous record: %w", err)
	}
	if anonOK {
		auth, authOK, err := s.store.Best(ctx, req.UserID)
		if err != nil {
			return domain.RemoteRecord{}, fmt.Errorf("load user record: %w", err)
		}
		var authPtr *domain.RemoteRecord
		if authOK {
			authPtr = &auth
		}
		plan := reconcile.PlanMerge(anon, authPtr)
		if plan.Rekey {
			err = s.store.Rekey(ctx, req.AnonymousID, req.UserID, req.Email)
		} else {
			copies := make([]domain.RemoteAttempt, 0, len(plan.Copy))
			for _, ch := range plan.Copy {
				a := anon.Chapters[ch]
				a.ID = uuid.NewString()
				a.Identity = req.UserID
				if req.Email != "" {
					a.Email = req.Email
				}
				copies = append(copies, a)
			}
			err = s.store.Absorb(ctx, req.AnonymousID, copies)
		}
		if err != nil {
			return domain.RemoteRecord{}, fmt.Errorf("apply merge: %w", err)
		}
		s.logger.Info("identity merged", "identity", req.AnonymousID, "user", req.UserID, "rekey", plan.Rekey, "copied", len(plan.Copy))
	}
	return s.Progress(ctx, req.UserID)
}

// Records returns the best-per-chapter record of every identity, ordered by identity.
func (s *Service) Records(ctx context.Context) ([]domain.RemoteRecord, error) {
	ids, err := s.store.Identities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	sort.Strings(ids)

	records := make([]domain.RemoteRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			rec, _, err := s.store.Best(gctx, id)
			if err != nil {
				return fmt.Errorf("load %s: %w", id, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// Record returns one identity's record or ErrRecordNotFound.
func (s *Service) Record(ctx context.Context, identity string) (domain.RemoteRecord, error) {
	record, ok, err := s.store.Best(ctx, identity)
	if err != nil {
		return domain.RemoteRecord{}, fmt.Errorf("load best: %w", err)
	}
	if !ok {
		return domain.RemoteRecord{}, domain.ErrRecordNotFound
	}
	return record, nil
}

func (s *Service) attemptFrom(identity string, sub domain.AttemptSubmission) domain.RemoteAttempt {
	id := sub.ID
	if id == "" {
		id = uuid.NewString()
	}
	at := sub.SubmittedAt
	if at.IsZero() {
		at = s.now()
	}
	return domain.RemoteAttempt{
		ID:          id,
		Identity:    identity,
		Email:       sub.Email,
		Chapter:     sub.Chapter,
		Score:       sub.Score,
		Total:       sub.Total,
		Percentage:  sub.Percentage,
		HintsUsed:   sub.HintsUsed,
		Responses:   sub.Responses,
		SubmittedAt: at.UTC(),
	}
}
