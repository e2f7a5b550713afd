package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnknownPrice     = errors.New("subscription price is not mapped to a plan")
	ErrCustomerNotFound = errors.New("no user for stripe customer")
)

// SubscriptionResult reports what a billing event changed.
type SubscriptionResult struct {
	UserID    uuid.UUID
	Plan      entitlement.Plan
	Changed   bool
	Duplicate bool
}

type SubscriptionService struct {
	db     *gorm.DB
	prices map[string]entitlement.Plan
}

// NewSubscriptionService maps Stripe price IDs to plans. Empty IDs are ignored.
func NewSubscriptionService(db *gorm.DB, studentPriceID, studentProPriceID string) *SubscriptionService {
	prices := make(map[string]entitlement.Plan, 2)
	if studentPriceID != "" {
		prices[studentPriceID] = entitlement.PlanStudent
	}
	if studentProPriceID != "" {
		prices[studentProPriceID] = entitlement.PlanStudentPro
	}
	return &SubscriptionService{db: db, prices: prices}
}

// HandleEvent applies a verified Stripe event. Events other than
// customer.subscription.* are ignored and return a zero result.
func (s *SubscriptionService) HandleEvent(ctx context.Context, event stripe.Event) (SubscriptionResult, error) {
	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
	default:
		return SubscriptionResult{}, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return SubscriptionResult{}, fmt.Errorf("invalid subscription payload: %w", err)
	}
	deleted := event.Type == "customer.subscription.deleted"
	return s.applySubscription(ctx, event.ID, &sub, deleted, event.Data.Raw)
}

func (s *SubscriptionService) applySubscription(ctx context.Context, eventID string, sub *stripe.Subscription, deleted bool, raw json.RawMessage) (SubscriptionResult, error) {
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	if customerID == "" {
		return SubscriptionResult{}, errors.New("subscription has no customer")
	}

	priceID := subscriptionPriceID(sub)
	paidPlan, known := s.prices[priceID]

	var result SubscriptionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.findUser(tx, customerID, sub.Metadata["user_id"])
		if err != nil {
			return err
		}
		result.UserID = user.ID

		var existing models.Subscription
		err = tx.Where("stripe_subscription_id = ?", sub.ID).First(&existing).Error
		if err == nil && existing.LastEventID == eventID {
			result.Duplicate = true
			result.Plan = entitlement.Plan(existing.Plan)
			return nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load subscription: %w", err)
		}

		plan, grant := planForStatus(sub.Status, deleted)
		if grant {
			if !known {
				return fmt.Errorf("%w: %q", ErrUnknownPrice, priceID)
			}
			plan = paidPlan
		}

		row := models.Subscription{
			UserID:               user.ID,
			StripeSubscriptionID: sub.ID,
			StripeCustomerID:     customerID,
			PriceID:              priceID,
			Plan:                 string(plan),
			Status:               string(sub.Status),
			CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
			CurrentPeriodStart:   unixTime(sub.CurrentPeriodStart),
			CurrentPeriodEnd:     unixTime(sub.CurrentPeriodEnd),
			LastEventID:          eventID,
			RawEvent:             datatypes.JSON(raw),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stripe_subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"price_id", "plan", "status", "cancel_at_period_end",
				"current_period_start", "current_period_end", "last_event_id", "raw_event", "updated_at",
			}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		// Incomplete subscriptions are recorded but do not move the user yet.
		if plan == "" {
			result.Plan = entitlement.Plan(user.SubscriptionPlan)
			return nil
		}
		result.Plan = plan
		if user.SubscriptionPlan == string(plan) {
			return nil
		}
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			Update("subscription_plan", string(plan)).Error; err != nil {
			return fmt.Errorf("failed to update user plan: %w", err)
		}
		result.Changed = true
		return nil
	})
	if err != nil {
		return SubscriptionResult{}, err
	}

	if result.Changed {
		slog.Info("subscription plan changed",
			"user_id", result.UserID.String(),
			"plan", string(result.Plan),
			"status", string(sub.Status),
			"stripe_subscription_id", sub.ID,
		)
	}
	return result, nil
}

// findUser resolves the account by Stripe customer ID, falling back to the
// user_id metadata set at checkout. The fallback links the customer ID.
func (s *SubscriptionService) findUser(tx *gorm.DB, customerID, metadataUserID string) (*models.User, error) {
	var user models.User
	err := tx.Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	userID, parseErr := uuid.Parse(metadataUserID)
	if parseErr != nil {
		return nil, ErrCustomerNotFound
	}
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := tx.Model(&user).Update("stripe_customer_id", customerID).Error; err != nil {
		return nil, fmt.Errorf("failed to link stripe customer: %w", err)
	}
	return &user, nil
}

// planForStatus returns grant=true when the subscription's paid plan applies.
// Otherwise plan is FREE, or empty when the user's plan should not change.
func planForStatus(status stripe.SubscriptionStatus, deleted bool) (entitlement.Plan, bool) {
	if deleted {
		return entitlement.PlanFree, false
	}
	switch status {
	case stripe.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing,
		stripe.SubscriptionStatusPastDue:
		return "", true
	case stripe.SubscriptionStatusIncomplete:
		return "", false
	default:
		return entitlement.PlanFree, false
	}
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
