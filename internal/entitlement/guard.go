package entitlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Locker serializes work on one key across server instances.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Guard runs gated actions: check the quota, perform the action, then count it.
type Guard struct {
	svc    *Service
	locker Locker
}

// NewGuard returns a Guard. locker may be nil, in which case concurrent
// actions of one user can overshoot the limit.
func NewGuard(svc *Service, locker Locker) *Guard {
	return &Guard{svc: svc, locker: locker}
}

// Run performs action when the user may use feature and records the usage
// after the action succeeded. A denied check returns a *DeniedError and the
// action is not run. When the action succeeded but the usage write failed,
// the returned error wraps ErrUsageNotRecorded.
func (g *Guard) Run(ctx context.Context, userID uuid.UUID, feature Feature, action func(ctx context.Context) error) (Decision, error) {
	if g.locker != nil && userID != uuid.Nil {
		release, err := g.locker.Acquire(ctx, lockKey(userID, feature))
		if err != nil {
			return Decision{}, err
		}
		defer release()
	}

	decision, err := g.svc.CanPerformAction(ctx, userID, feature)
	if err != nil {
		return Decision{}, err
	}
	if !decision.Allowed {
		return decision, &DeniedError{Decision: decision}
	}

	if err := action(ctx); err != nil {
		return decision, err
	}

	if err := g.svc.IncrementUsage(ctx, userID, feature); err != nil {
		return decision, fmt.Errorf("%w: %v", ErrUsageNotRecorded, err)
	}
	decision.Current++
	return decision, nil
}

func lockKey(userID uuid.UUID, feature Feature) string {
	return "entitlement:lock:" + userID.String() + ":" + string(feature)
}
