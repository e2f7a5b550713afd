package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository reads and writes limit rows, usage counters and the plan stored
// on users. It keeps no state besides the database handle.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Transaction runs fn inside a database transaction with a repository bound to it.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) FindUserPlan(ctx context.Context, userID uuid.UUID) (Plan, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("id", "subscription_plan").First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	return planOf(user.SubscriptionPlan), nil
}

// FindActiveLimit returns nil when no active row exists for the pair.
func (r *Repository) FindActiveLimit(ctx context.Context, plan Plan, feature Feature) (*models.FeatureLimit, error) {
	var row models.FeatureLimit
	err := r.db.WithContext(ctx).
		Where("plan = ? AND feature = ? AND is_active = ?", string(plan), string(feature), true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load limit: %w", err)
	}
	return &row, nil
}

func (r *Repository) ListActiveLimits(ctx context.Context, plan Plan) ([]models.FeatureLimit, error) {
	var rows []models.FeatureLimit
	if err := r.db.WithContext(ctx).
		Where("plan = ? AND is_active = ?", string(plan), true).
		Order("feature").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list limits: %w", err)
	}
	return rows, nil
}

// UpsertLimit creates or replaces the row for (plan, feature).
func (r *Repository) UpsertLimit(ctx context.Context, plan Plan, feature Feature, limit int64, active bool) error {
	row := models.FeatureLimit{
		Plan:     string(plan),
		Feature:  string(feature),
		Limit:    limit,
		IsActive: active,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plan"}, {Name: "feature"}},
		DoUpdates: clause.AssignmentColumns([]string{"limit_value", "is_active", "updated_at"}),
	}).Create(&row).Error
}

// FindCounter returns nil when the user never used the feature.
func (r *Repository) FindCounter(ctx context.Context, userID uuid.UUID, feature Feature) (*models.UsageTracking, error) {
	return r.findCounter(r.db.WithContext(ctx), userID, feature)
}

// FindCounterForUpdate is FindCounter with a row lock on databases that
// support one. Call it inside Transaction.
func (r *Repository) FindCounterForUpdate(ctx context.Context, userID uuid.UUID, feature Feature) (*models.UsageTracking, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.findCounter(q, userID, feature)
}

func (r *Repository) findCounter(q *gorm.DB, userID uuid.UUID, feature Feature) (*models.UsageTracking, error) {
	var row models.UsageTracking
	err := q.Where("user_id = ? AND feature = ?", userID, string(feature)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage counter: %w", err)
	}
	return &row, nil
}

func (r *Repository) ListCounters(ctx context.Context, userID uuid.UUID) ([]models.UsageTracking, error) {
	var rows []models.UsageTracking
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage counters: %w", err)
	}
	return rows, nil
}

// CreateCounter inserts a counter unless one already exists for the pair.
// It reports false when another writer created the row first.
func (r *Repository) CreateCounter(ctx context.Context, counter *models.UsageTracking) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "feature"}},
		DoNothing: true,
	}).Create(counter)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create usage counter: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) SaveCounter(ctx context.Context, counter *models.UsageTracking) error {
	err := r.db.WithContext(ctx).Model(counter).Updates(map[string]interface{}{
		"count":      counter.Count,
		"last_reset": counter.LastReset,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to save usage counter: %w", err)
	}
	return nil
}

// ResetCounter sets count to 0 and starts a new window. It reports whether a
// row existed.
func (r *Repository) ResetCounter(ctx context.Context, userID uuid.UUID, feature Feature, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.UsageTracking{}).
		Where("user_id = ? AND feature = ?", userID, string(feature)).
		Updates(map[string]interface{}{
			"count":      0,
			"last_reset": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to reset usage counter: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
