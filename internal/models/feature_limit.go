package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FeatureLimit is the ceiling for one feature on one plan. Limit -1 is unlimited.
// Rows are seeded at startup and edited by administrators only.
type FeatureLimit struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Plan      string    `gorm:"size:20;not null;uniqueIndex:idx_feature_limits_plan_feature,priority:1" json:"plan"`
	Feature   string    `gorm:"size:50;not null;uniqueIndex:idx_feature_limits_plan_feature,priority:2" json:"feature"`
	Limit     int64     `gorm:"column:limit_value;not null" json:"limit"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l *FeatureLimit) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (FeatureLimit) TableName() string {
	return "feature_limits"
}
