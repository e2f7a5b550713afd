package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Subscription mirrors the billing provider's subscription for a user.
type Subscription struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID               uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	StripeSubscriptionID string         `gorm:"size:255;not null;uniqueIndex" json:"stripe_subscription_id"`
	StripeCustomerID     string         `gorm:"size:255;index" json:"stripe_customer_id"`
	PriceID              string         `gorm:"size:255" json:"price_id"`
	Plan                 string         `gorm:"size:20;not null" json:"plan"`
	Status               string         `gorm:"size:50;not null" json:"status"`
	CancelAtPeriodEnd    bool           `json:"cancel_at_period_end"`
	CurrentPeriodStart   time.Time      `json:"current_period_start"`
	CurrentPeriodEnd     time.Time      `json:"current_period_end"`
	LastEventID          string         `gorm:"size:255" json:"-"`
	RawEvent             datatypes.JSON `json:"-"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	User                 User           `gorm:"foreignKey:UserID" json:"-"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
