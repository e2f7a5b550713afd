// Package entitlement decides whether a user may perform a counted action
// under their subscription plan and keeps the per-user usage counters.
//
// Limits are stored per (plan, feature) in the feature_limits table. A limit of
// Unlimited (-1) never denies. Counters are stored per (user, feature) in the
// usage_tracking table and roll over lazily: the first increment after the
// rollover period (30 days by default) starts a new window with count 1.
//
// The usual flow for a gated action:
//
//	decision, err := svc.CanPerformAction(ctx, userID, entitlement.FeatureAIGenerations)
//	if err != nil {
//	    return err
//	}
//	if !decision.Allowed {
//	    return fiber.NewError(fiber.StatusForbidden, decision.Reason)
//	}
//	// ... perform the action ...
//	return svc.IncrementUsage(ctx, userID, entitlement.FeatureAIGenerations)
//
// Guard wraps that sequence. Check and increment are separate transactions, so
// concurrent requests by the same user can overshoot a limit. Consume folds both
// into one transaction when a hard cap is needed, and a Guard configured with a
// Locker serializes the whole check, act, increment sequence per user and feature.
//
// Features with no active limit row are allowed unless the service is built
// with DenyUnseeded.
package entitlement
