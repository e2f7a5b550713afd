package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnseededPolicy decides what happens when a feature has no active limit row.
type UnseededPolicy int

const (
	AllowUnseeded UnseededPolicy = iota
	DenyUnseeded
)

type Options struct {
	Unseeded UnseededPolicy
	Rollover time.Duration
	Clock    Clock
	Metrics  *Metrics
}

type Service struct {
	repo     *Repository
	unseeded UnseededPolicy
	rollover time.Duration
	clock    Clock
	metrics  *Metrics
}

func NewService(db *gorm.DB, opts Options) *Service {
	if opts.Rollover <= 0 {
		opts.Rollover = DefaultRollover
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	return &Service{
		repo:     NewRepository(db),
		unseeded: opts.Unseeded,
		rollover: opts.Rollover,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// GetLimit returns the active limit for (plan, feature). Without a row it
// returns Unlimited, or ErrLimitNotConfigured under DenyUnseeded.
func (s *Service) GetLimit(ctx context.Context, plan Plan, feature Feature) (int64, error) {
	if !feature.Valid() {
		return 0, ErrInvalidFeature
	}
	limit, configured, err := s.resolveLimit(ctx, s.repo, plan, feature)
	if err != nil {
		return 0, err
	}
	if !configured && s.unseeded == DenyUnseeded {
		return 0, ErrLimitNotConfigured
	}
	return limit, nil
}

// resolveLimit reports configured=false when no active row exists; the
// returned limit then already reflects the unseeded policy.
func (s *Service) resolveLimit(ctx context.Context, repo *Repository, plan Plan, feature Feature) (int64, bool, error) {
	row, err := repo.FindActiveLimit(ctx, plan, feature)
	if err != nil {
		return 0, false, err
	}
	if row == nil {
		if s.unseeded == DenyUnseeded {
			return 0, false, nil
		}
		return Unlimited, false, nil
	}
	return row.Limit, true, nil
}

// CanPerformAction decides whether userID may use feature now. It never writes.
// A missing or unknown user yields a denied decision, not an error; errors are
// reserved for invalid input and store failures.
func (s *Service) CanPerformAction(ctx context.Context, userID uuid.UUID, feature Feature) (Decision, error) {
	if !feature.Valid() {
		return Decision{}, ErrInvalidFeature
	}
	d, err := s.decide(ctx, s.repo, userID, feature, false)
	if err != nil {
		return Decision{}, err
	}
	s.metrics.observeDecision(feature, d.Allowed)
	return d, nil
}

func (s *Service) decide(ctx context.Context, repo *Repository, userID uuid.UUID, feature Feature, lock bool) (Decision, error) {
	d := Decision{Feature: feature}
	if userID == uuid.Nil {
		d.Reason = ReasonNotLoggedIn
		return d, nil
	}

	plan, err := repo.FindUserPlan(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		d.Reason = ReasonUserNotFound
		return d, nil
	}
	if err != nil {
		return d, err
	}
	d.Plan = plan

	limit, configured, err := s.resolveLimit(ctx, repo, plan, feature)
	if err != nil {
		return d, err
	}
	d.Limit = limit

	var counter *models.UsageTracking
	if lock {
		counter, err = s.lockCounter(ctx, repo, userID, feature, limit)
	} else {
		counter, err = repo.FindCounter(ctx, userID, feature)
	}
	if err != nil {
		return d, err
	}
	d.Current = s.effectiveCount(counter)

	switch {
	case !configured && s.unseeded == DenyUnseeded:
		d.Reason = fmt.Sprintf("No limit configured for %s", feature.Humanize())
	case limit == Unlimited:
		d.Allowed = true
	case d.Current < limit:
		d.Allowed = true
	default:
		d.Reason = fmt.Sprintf("You have used %d of %d %s allowed on the %s plan this period",
			d.Current, limit, feature.Humanize(), plan)
	}
	return d, nil
}

// effectiveCount is the counter value in the current window. An expired
// window counts as 0 even though the row is only rolled on the next increment.
func (s *Service) effectiveCount(counter *models.UsageTracking) int64 {
	if counter == nil || s.windowExpired(counter) {
		return 0
	}
	return counter.Count
}

func (s *Service) windowExpired(counter *models.UsageTracking) bool {
	return s.now().Sub(counter.LastReset) >= s.rollover
}

// IncrementUsage adds one use of feature for userID. It does not check the
// limit; call CanPerformAction first. The first increment after the rollover
// period starts a new window with count 1.
func (s *Service) IncrementUsage(ctx context.Context, userID uuid.UUID, feature Feature) error {
	if !feature.Valid() {
		return ErrInvalidFeature
	}
	if userID == uuid.Nil {
		return ErrNotLoggedIn
	}
	return s.repo.Transaction(ctx, func(tx *Repository) error {
		return s.increment(ctx, tx, userID, feature)
	})
}

func (s *Service) increment(ctx context.Context, tx *Repository, userID uuid.UUID, feature Feature) error {
	now := s.now()

	counter, err := tx.FindCounterForUpdate(ctx, userID, feature)
	if err != nil {
		return err
	}
	if counter == nil {
		created, err := tx.CreateCounter(ctx, &models.UsageTracking{
			UserID:    userID,
			Feature:   string(feature),
			Count:     1,
			LastReset: now,
		})
		if err != nil {
			return err
		}
		if created {
			s.metrics.observeIncrement(feature, false)
			return nil
		}
		// Lost the insert race; the other writer's row is there now.
		counter, err = tx.FindCounterForUpdate(ctx, userID, feature)
		if err != nil {
			return err
		}
		if counter == nil {
			return fmt.Errorf("usage counter for %s vanished after insert conflict", feature)
		}
	}

	rollover := s.windowExpired(counter)
	if rollover {
		counter.Count = 1
		counter.LastReset = now
	} else {
		counter.Count++
	}
	if err := tx.SaveCounter(ctx, counter); err != nil {
		return err
	}
	s.metrics.observeIncrement(feature, rollover)
	return nil
}

// lockCounter returns the counter row locked for update. For a finite limit
// a zero row is inserted first when none exists, so the first uses of a
// feature also queue on a row lock instead of all reading "no usage".
func (s *Service) lockCounter(ctx context.Context, repo *Repository, userID uuid.UUID, feature Feature, limit int64) (*models.UsageTracking, error) {
	counter, err := repo.FindCounterForUpdate(ctx, userID, feature)
	if err != nil || counter != nil || limit == Unlimited {
		return counter, err
	}
	if _, err := repo.CreateCounter(ctx, &models.UsageTracking{
		UserID:    userID,
		Feature:   string(feature),
		Count:     0,
		LastReset: s.now(),
	}); err != nil {
		return nil, err
	}
	return repo.FindCounterForUpdate(ctx, userID, feature)
}

// errConsumeDenied rolls back a denied Consume, dropping any zero row
// inserted by lockCounter.
var errConsumeDenied = errors.New("consume denied")

// Consume checks and increments in one transaction. The counter row is
// locked on Postgres, so concurrent callers cannot both pass the last slot.
func (s *Service) Consume(ctx context.Context, userID uuid.UUID, feature Feature) (Decision, error) {
	if !feature.Valid() {
		return Decision{}, ErrInvalidFeature
	}
	var d Decision
	err := s.repo.Transaction(ctx, func(tx *Repository) error {
		var err error
		d, err = s.decide(ctx, tx, userID, feature, true)
		if err != nil {
			return err
		}
		if !d.Allowed {
			return errConsumeDenied
		}
		if err := s.increment(ctx, tx, userID, feature); err != nil {
			return err
		}
		d.Current++
		return nil
	})
	if err != nil && !errors.Is(err, errConsumeDenied) {
		return Decision{}, err
	}
	s.metrics.observeDecision(feature, d.Allowed)
	return d, nil
}

// ResetUsage zeroes the counter and starts a new window. It does nothing when
// the user has no counter for the feature.
func (s *Service) ResetUsage(ctx context.Context, userID uuid.UUID, feature Feature) error {
	if !feature.Valid() {
		return ErrInvalidFeature
	}
	existed, err := s.repo.ResetCounter(ctx, userID, feature, s.now())
	if err != nil {
		return err
	}
	if existed {
		s.metrics.observeReset(feature)
		slog.Info("usage reset", "user_id", userID.String(), "feature", string(feature))
	}
	return nil
}

// GetUsage reports the caller's usage of one feature.
func (s *Service) GetUsage(ctx context.Context, userID uuid.UUID, feature Feature) (UsageInfo, error) {
	if !feature.Valid() {
		return UsageInfo{}, ErrInvalidFeature
	}
	plan, err := s.repo.FindUserPlan(ctx, userID)
	if err != nil {
		return UsageInfo{}, err
	}
	limit, configured, err := s.resolveLimit(ctx, s.repo, plan, feature)
	if err != nil {
		return UsageInfo{}, err
	}
	counter, err := s.repo.FindCounter(ctx, userID, feature)
	if err != nil {
		return UsageInfo{}, err
	}
	return s.usageInfo(plan, feature, limit, configured, counter), nil
}

// GetAllUsage reports usage of every known feature, in Features order.
func (s *Service) GetAllUsage(ctx context.Context, userID uuid.UUID) ([]UsageInfo, error) {
	plan, err := s.repo.FindUserPlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListActiveLimits(ctx, plan)
	if err != nil {
		return nil, err
	}
	counters, err := s.repo.ListCounters(ctx, userID)
	if err != nil {
		return nil, err
	}

	limits := make(map[Feature]int64, len(rows))
	for _, row := range rows {
		limits[Feature(row.Feature)] = row.Limit
	}
	byFeature := make(map[Feature]*models.UsageTracking, len(counters))
	for i := range counters {
		byFeature[Feature(counters[i].Feature)] = &counters[i]
	}

	result := make([]UsageInfo, 0, len(Features()))
	for _, feature := range Features() {
		limit, configured := limits[feature]
		if !configured {
			limit = Unlimited
			if s.unseeded == DenyUnseeded {
				limit = 0
			}
		}
		result = append(result, s.usageInfo(plan, feature, limit, configured, byFeature[feature]))
	}
	return result, nil
}

func (s *Service) usageInfo(plan Plan, feature Feature, limit int64, configured bool, counter *models.UsageTracking) UsageInfo {
	info := UsageInfo{
		Feature:    feature,
		Plan:       plan,
		Limit:      limit,
		Configured: configured,
		Current:    s.effectiveCount(counter),
	}
	if counter != nil {
		info.StoredCount = counter.Count
		if !s.windowExpired(counter) {
			lastReset := counter.LastReset.UTC()
			resetsAt := lastReset.Add(s.rollover)
			info.LastReset = &lastReset
			info.ResetsAt = &resetsAt
		}
	}
	info.Remaining = remaining(info.Current, limit)
	info.Percentage = usagePercentage(info.Current, limit)
	info.Warning = limit != Unlimited && info.Percentage >= WarningThreshold
	return info
}

// GetLimitsByPlan lists the active limits of a plan in Features order.
func (s *Service) GetLimitsByPlan(ctx context.Context, plan Plan) ([]LimitEntry, error) {
	if _, err := ParsePlan(string(plan)); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListActiveLimits(ctx, plan)
	if err != nil {
		return nil, err
	}
	byFeature := make(map[Feature]int64, len(rows))
	for _, row := range rows {
		byFeature[Feature(row.Feature)] = row.Limit
	}
	entries := make([]LimitEntry, 0, len(rows))
	for _, feature := range Features() {
		if limit, ok := byFeature[feature]; ok {
			entries = append(entries, LimitEntry{Feature: feature, Limit: limit})
		}
	}
	return entries, nil
}

// SetLimit creates or edits the limit row for (plan, feature).
func (s *Service) SetLimit(ctx context.Context, plan Plan, feature Feature, limit int64, active bool) error {
	if _, err := ParsePlan(string(plan)); err != nil {
		return err
	}
	if !feature.Valid() {
		return ErrInvalidFeature
	}
	if limit < Unlimited {
		return ErrInvalidLimit
	}
	return s.repo.UpsertLimit(ctx, plan, feature, limit, active)
}

// SeedLimits writes every catalog entry as an active row. Re-running it
// restores the catalog values.
func (s *Service) SeedLimits(ctx context.Context, catalog Catalog) error {
	if err := catalog.Validate(); err != nil {
		return err
	}
	return s.repo.Transaction(ctx, func(tx *Repository) error {
		for _, plan := range Plans() {
			for _, feature := range Features() {
				limit, ok := catalog[plan][feature]
				if !ok {
					continue
				}
				if err := tx.UpsertLimit(ctx, plan, feature, limit, true); err != nil {
					return fmt.Errorf("failed to seed %s/%s: %w", plan, feature, err)
				}
			}
		}
		return nil
	})
}
