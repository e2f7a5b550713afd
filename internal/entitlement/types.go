package entitlement

import (
	"strings"
	"time"
)

// Unlimited is the limit value that never denies.
const Unlimited int64 = -1

// DefaultRollover is the length of a usage window.
const DefaultRollover = 30 * 24 * time.Hour

// WarningThreshold is the usage percentage from which UsageInfo.Warning is set.
const WarningThreshold = 80

// Plan is a subscription tier.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanStudent    Plan = "STUDENT"
	PlanStudentPro Plan = "STUDENTPRO"

	// PlanLegacyPro appears in old pricing data. It has no limit rows and is
	// not accepted by ParsePlan.
	PlanLegacyPro Plan = "PRO"
)

// Plans returns the plans that carry limit rows, cheapest first.
func Plans() []Plan {
	return []Plan{PlanFree, PlanStudent, PlanStudentPro}
}

// ParsePlan validates a plan name. Matching is case-insensitive.
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Plans() {
		if p == known {
			return p, nil
		}
	}
	return "", ErrInvalidPlan
}

// planOf returns the plan stored on a user record, FREE when unset.
func planOf(stored string) Plan {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return PlanFree
	}
	return Plan(strings.ToUpper(stored))
}

// Feature identifies a counted action.
type Feature string

const (
	FeatureCoursesCreated    Feature = "COURSES_CREATED"
	FeatureDecksCreated      Feature = "DECKS_CREATED"
	FeatureCardsCreated      Feature = "CARDS_CREATED"
	FeatureAIGenerations     Feature = "AI_GENERATIONS"
	FeatureDataExports       Feature = "DATA_EXPORTS"
	FeatureAnalyticsViews    Feature = "ANALYTICS_VIEWS"
	FeatureGoogleMeetCreated Feature = "GOOGLE_MEET_CREATED"
)

var featureNames = map[Feature]string{
	FeatureCoursesCreated:    "courses",
	FeatureDecksCreated:      "decks",
	FeatureCardsCreated:      "cards",
	FeatureAIGenerations:     "AI generations",
	FeatureDataExports:       "data exports",
	FeatureAnalyticsViews:    "analytics views",
	FeatureGoogleMeetCreated: "Google Meet links",
}

// Features returns every known feature in display order.
func Features() []Feature {
	return []Feature{
		FeatureCoursesCreated,
		FeatureDecksCreated,
		FeatureCardsCreated,
		FeatureAIGenerations,
		FeatureDataExports,
		FeatureAnalyticsViews,
		FeatureGoogleMeetCreated,
	}
}

// ParseFeature accepts "AI_GENERATIONS", "ai_generations" and "ai-generations".
func ParseFeature(s string) (Feature, error) {
	f := Feature(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !f.Valid() {
		return "", ErrInvalidFeature
	}
	return f, nil
}

func (f Feature) Valid() bool {
	_, ok := featureNames[f]
	return ok
}

// Humanize returns the name shown to users, e.g. "AI generations".
func (f Feature) Humanize() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return strings.ToLower(strings.ReplaceAll(string(f), "_", " "))
}

// Denial reasons that do not come from a limit.
const (
	ReasonNotLoggedIn  = "Not logged in"
	ReasonUserNotFound = "User not found"
)

// Decision is the answer to "may this user perform this action now".
type Decision struct {
	Allowed bool    `json:"allowed"`
	Reason  string  `json:"reason,omitempty"`
	Feature Feature `json:"feature"`
	Plan    Plan    `json:"plan,omitempty"`
	Current int64   `json:"current"`
	Limit   int64   `json:"limit"`
}

// UsageInfo describes a user's usage of one feature in the current window.
type UsageInfo struct {
	Feature     Feature    `json:"feature"`
	Plan        Plan       `json:"plan"`
	Current     int64      `json:"current"`
	StoredCount int64      `json:"stored_count"`
	Limit       int64      `json:"limit"`
	Remaining   int64      `json:"remaining"`
	Percentage  int        `json:"percentage"`
	Configured  bool       `json:"configured"`
	Warning     bool       `json:"warning"`
	LastReset   *time.Time `json:"last_reset,omitempty"`
	ResetsAt    *time.Time `json:"resets_at,omitempty"`
}

// LimitEntry is one row of a plan's limit table.
type LimitEntry struct {
	Feature Feature `json:"feature"`
	Limit   int64   `json:"limit"`
}

// usagePercentage returns 0-100, or -1 for unlimited.
func usagePercentage(current, limit int64) int {
	if limit == Unlimited {
		return -1
	}
	if limit == 0 {
		return 100
	}
	return int(min((current*100)/limit, 100))
}

func remaining(current, limit int64) int64 {
	if limit == Unlimited {
		return Unlimited
	}
	return max(limit-current, 0)
}
