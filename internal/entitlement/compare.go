package entitlement

import "context"

// LimitChange is a limit that differs between two plans.
type LimitChange struct {
	Feature Feature `json:"feature"`
	From    int64   `json:"from"`
	To      int64   `json:"to"`
}

// PlanComparison lists how limits change when moving from one plan to another.
type PlanComparison struct {
	From      Plan          `json:"from"`
	To        Plan          `json:"to"`
	Increased []LimitChange `json:"increased"`
	Decreased []LimitChange `json:"decreased"`
	Added     []LimitEntry  `json:"added"`
	Removed   []LimitEntry  `json:"removed"`

	// failOpen is set when a missing row means unlimited rather than denied.
	failOpen bool
}

// IsDowngrade reports whether any limit gets tighter. A row that appears or
// disappears counts by what a missing row means under the service's
// unseeded policy.
func (c PlanComparison) IsDowngrade() bool {
	if len(c.Decreased) > 0 {
		return true
	}
	if !c.failOpen {
		return len(c.Removed) > 0
	}
	for _, e := range c.Added {
		if e.Limit != Unlimited {
			return true
		}
	}
	return false
}

// ComparePlans compares the active limits of two plans. Unlimited ranks above
// every finite limit.
func (s *Service) ComparePlans(ctx context.Context, from, to Plan) (PlanComparison, error) {
	current, err := s.GetLimitsByPlan(ctx, from)
	if err != nil {
		return PlanComparison{}, err
	}
	target, err := s.GetLimitsByPlan(ctx, to)
	if err != nil {
		return PlanComparison{}, err
	}
	cmp := compareLimits(from, to, current, target)
	cmp.failOpen = s.unseeded == AllowUnseeded
	return cmp, nil
}

func compareLimits(from, to Plan, current, target []LimitEntry) PlanComparison {
	cmp := PlanComparison{
		From:      from,
		To:        to,
		Increased: make([]LimitChange, 0),
		Decreased: make([]LimitChange, 0),
		Added:     make([]LimitEntry, 0),
		Removed:   make([]LimitEntry, 0),
	}

	currentByFeature := make(map[Feature]int64, len(current))
	for _, e := range current {
		currentByFeature[e.Feature] = e.Limit
	}
	targetByFeature := make(map[Feature]int64, len(target))
	for _, e := range target {
		targetByFeature[e.Feature] = e.Limit
	}

	for _, e := range target {
		was, ok := currentByFeature[e.Feature]
		if !ok {
			cmp.Added = append(cmp.Added, e)
			continue
		}
		if was == e.Limit {
			continue
		}
		change := LimitChange{Feature: e.Feature, From: was, To: e.Limit}
		if limitRank(e.Limit) > limitRank(was) {
			cmp.Increased = append(cmp.Increased, change)
		} else {
			cmp.Decreased = append(cmp.Decreased, change)
		}
	}
	for _, e := range current {
		if _, ok := targetByFeature[e.Feature]; !ok {
			cmp.Removed = append(cmp.Removed, e)
		}
	}
	return cmp
}

func limitRank(limit int64) int64 {
	if limit == Unlimited {
		return 1<<63 - 1
	}
	return limit
}
