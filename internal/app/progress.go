package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chapter-quiz-service/internal/achievements"
	"chapter-quiz-service/internal/domain"
	"chapter-quiz-service/internal/identity"
	"chapter-quiz-service/internal/kv"
	"chapter-quiz-service/internal/ledger"
	"chapter-quiz-service/internal/quiz"
	"chapter-quiz-service/internal/reconcile"
	"chapter-quiz-service/internal/spacedrep"
)

const accountKey = "account"

// ErrRemoteUnavailable is returned by SignIn when no remote store is configured.
var ErrRemoteUnavailable = errors.New("remote progress store not configured")

// Completion is everything that follows a finished attempt.
type Completion struct {
	Result             domain.AttemptResult         `json:"result"`
	AdjustedPercentage int                          `json:"adjustedPercentage"`
	Passed             bool                         `json:"passed"`
	Progress           domain.ChapterProgress       `json:"progress"`
	Review             domain.SpacedRepetitionEntry `json:"review"`
	Unlocked           []achievements.Badge         `json:"unlocked,omitempty"`
}

// Account is the signed-in identity of a device.
type Account struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

type device struct {
	store     kv.Store
	ledger    *ledger.Ledger
	scheduler *spacedrep.Scheduler
	tracker   *achievements.Tracker
}

func (s *QuizService) device(deviceID string) device {
	store := kv.DeviceStore(s.devices, deviceID)
	return device{
		store:     store,
		ledger:    ledger.NewWithClock(store, s.logger, s.now),
		scheduler: spacedrep.NewScheduler(store, s.logger),
		tracker:   achievements.NewTracker(store, s.rules, s.logger),
	}
}

// complete records the attempt locally, then hands remote submission to the
// background queue. Local writes never wait on the remote store.
func (s *QuizService) complete(ctx context.Context, deviceID string, def domain.QuizDefinition, result domain.AttemptResult) (Completion, error) {
	lock := s.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	dev := s.device(deviceID)
	logger := s.logger.With("device", deviceID, "chapter", result.Chapter)

	progress, err := dev.ledger.Record(ctx, result.Chapter, result.Correct, result.Total, result.HintsUsed)
	if err != nil {
		return Completion{}, fmt.Errorf("record attempt: %w", err)
	}
	review, err := dev.scheduler.RecordReview(ctx, result.Chapter, result.Percentage, now)
	if err != nil {
		return Completion{}, fmt.Errorf("schedule review: %w", err)
	}
	all, err := dev.ledger.All(ctx)
	if err != nil {
		return Completion{}, fmt.Errorf("load progress: %w", err)
	}
	_, unlocked, err := dev.tracker.Evaluate(ctx, all, achievements.Attempt{
		Chapter:    result.Chapter,
		Percentage: result.Percentage,
		At:         now,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("derive achievements: %w", err)
	}

	completion := Completion{
		Result:             result,
		AdjustedPercentage: quiz.AdjustedPercentage(result.Percentage, result.HintsUsed),
		Passed:             quiz.Passed(def, result.Percentage),
		Progress:           progress,
		Review:             review,
	}
	for _, id := range unlocked {
		if badge, ok := achievements.Lookup(id); ok {
			completion.Unlocked = append(completion.Unlocked, badge)
		}
	}
	logger.Info("attempt recorded",
		"percentage", result.Percentage,
		"best", progress.Percentage,
		"attempts", progress.Attempts,
		"nextReview", review.NextReview,
		"unlocked", len(unlocked))

	s.enqueueRemote(ctx, deviceID, dev, result, all)
	return completion, nil
}

// enqueueRemote schedules the attempt submission and the once-per-identity
// bulk sync. Failures here are logged only.
func (s *QuizService) enqueueRemote(ctx context.Context, deviceID string, dev device, result domain.AttemptResult, all map[int]domain.ChapterProgress) {
	if s.syncer == nil || s.queue == nil {
		return
	}
	who, email, err := s.remoteIdentity(ctx, dev)
	if err != nil {
		s.logger.Warn("remote identity unavailable, skipping submission", "device", deviceID, "error", err)
		return
	}

	sub := reconcile.SubmissionFromResult(who, email, result)
	sub.ID = uuid.NewString()
	sub.SubmittedAt = s.now()
	s.queue.Enqueue(reconcile.Task{
		Name: "submit:" + who + ":" + domain.ChapterKey(result.Chapter),
		Run: func(ctx context.Context) error {
			return s.syncer.Submit(ctx, sub)
		},
	})

	s.enqueueSync(who, email, all)
}

// Load queues the once-per-process bulk sync of a device whose ledger may
// predate this process. Later calls for the same device do nothing.
func (s *QuizService) Load(ctx context.Context, deviceID string) {
	if s.syncer == nil || s.queue == nil || deviceID == "" {
		return
	}
	if _, seen := s.loaded.LoadOrStore(deviceID, struct{}{}); seen {
		return
	}
	lock := s.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	dev := s.device(deviceID)
	who, email, err := s.remoteIdentity(ctx, dev)
	if err != nil {
		s.logger.Warn("remote identity unavailable, skipping load sync", "device", deviceID, "error", err)
		return
	}
	all, err := dev.ledger.All(ctx)
	if err != nil {
		s.logger.Warn("load progress failed, skipping load sync", "device", deviceID, "error", err)
		return
	}
	s.enqueueSync(who, email, all)
}

func (s *QuizService) enqueueSync(who, email string, all map[int]domain.ChapterProgress) {
	snapshot := make(map[int]domain.ChapterProgress, len(all))
	for ch, p := range all {
		snapshot[ch] = p
	}
	s.queue.Enqueue(reconcile.Task{
		Name: "sync:" + who,
		Run: func(ctx context.Context) error {
			_, err := s.syncer.SyncOnce(ctx, who, email, snapshot)
			return err
		},
	})
}

// remoteIdentity is the signed-in user when there is one, else the
// anonymous identifier.
func (s *QuizService) remoteIdentity(ctx context.Context, dev device) (string, string, error) {
	var acct Account
	ok, err := kv.GetJSON(ctx, dev.store, accountKey, &acct)
	if err != nil && !errors.Is(err, kv.ErrMalformed) {
		return "", "", err
	}
	if ok && acct.UserID != "" {
		return acct.UserID, acct.Email, nil
	}
	anon, err := identity.Resolve(ctx, dev.store)
	return anon, "", err
}

// Progress returns the device's ledger.
func (s *QuizService) Progress(ctx context.Context, deviceID string) (map[int]domain.ChapterProgress, error) {
	return s.device(deviceID).ledger.All(ctx)
}

// DueReviews lists chapters due for review now.
func (s *QuizService) DueReviews(ctx context.Context, deviceID string) ([]domain.SpacedRepetitionEntry, error) {
	return s.device(deviceID).scheduler.DueReviews(ctx, s.now())
}

// Achievements returns the device's achievement ledger.
func (s *QuizService) Achievements(ctx context.Context, deviceID string) (domain.AchievementLedger, error) {
	return s.device(deviceID).tracker.Ledger(ctx)
}

// AnonymousID returns the device's anonymous identifier, minting it if needed.
func (s *QuizService) AnonymousID(ctx context.Context, deviceID string) (string, error) {
	return identity.Resolve(ctx, s.device(deviceID).store)
}

// SignIn absorbs the device's anonymous remote record into userID and makes
// userID the identity of later submissions. Unlike other remote calls it is
// awaited. The local ledger is left untouched.
func (s *QuizService) SignIn(ctx context.Context, deviceID, userID, email string) (domain.RemoteRecord, error) {
	if s.syncer == nil {
		return domain.RemoteRecord{}, ErrRemoteUnavailable
	}
	if userID == "" {
		return domain.RemoteRecord{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	lock := s.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	dev := s.device(deviceID)
	anon, err := identity.Resolve(ctx, dev.store)
	if err != nil {
		return domain.RemoteRecord{}, err
	}
	logger := s.logger.With("device", deviceID, "identity", anon, "user", userID)

	// push what the anonymous record may be missing before it is absorbed
	if all, err := dev.ledger.All(ctx); err == nil {
		if _, err := s.syncer.BulkSync(ctx, anon, email, all); err != nil {
			logger.Warn("pre-merge sync failed", "error", err)
		}
	}

	record, err := s.syncer.Merge(ctx, domain.MergeRequest{AnonymousID: anon, UserID: userID, Email: email})
	if err != nil {
		return domain.RemoteRecord{}, err
	}
	if err := kv.SetJSON(ctx, dev.store, accountKey, Account{UserID: userID, Email: email}); err != nil {
		return domain.RemoteRecord{}, fmt.Errorf("save account: %w", err)
	}
	logger.Info("device signed in", "chapters", len(record.Chapters))
	return record, nil
}
