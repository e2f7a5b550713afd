package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageTracking counts how often a user used a feature since LastReset.
type UsageTracking struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_usage_tracking_user_feature,priority:1" json:"user_id"`
	Feature   string    `gorm:"size:50;not null;uniqueIndex:idx_usage_tracking_user_feature,priority:2" json:"feature"`
	Count     int64     `gorm:"not null" json:"count"`
	LastReset time.Time `gorm:"not null" json:"last_reset"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *UsageTracking) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (UsageTracking) TableName() string {
	return "usage_tracking"
}
