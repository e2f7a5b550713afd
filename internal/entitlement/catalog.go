package entitlement

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
)

// Catalog holds the limit of every seeded feature per plan.
// GOOGLE_MEET_CREATED is deliberately absent from the defaults.
type Catalog map[Plan]map[Feature]int64

// DefaultCatalog returns the limits seeded on a fresh deployment.
func DefaultCatalog() Catalog {
	return Catalog{
		PlanFree: {
			FeatureCoursesCreated: 3,
			FeatureDecksCreated:   5,
			FeatureCardsCreated:   100,
			FeatureAIGenerations:  5,
			FeatureDataExports:    1,
			FeatureAnalyticsViews: 10,
		},
		PlanStudent: {
			FeatureCoursesCreated: 10,
			FeatureDecksCreated:   25,
			FeatureCardsCreated:   1000,
			FeatureAIGenerations:  50,
			FeatureDataExports:    10,
			FeatureAnalyticsViews: 100,
		},
		PlanStudentPro: {
			FeatureCoursesCreated: Unlimited,
			FeatureDecksCreated:   Unlimited,
			FeatureCardsCreated:   Unlimited,
			FeatureAIGenerations:  500,
			FeatureDataExports:    Unlimited,
			FeatureAnalyticsViews: Unlimited,
		},
	}
}

type catalogFile struct {
	Plans []struct {
		Plan   string           `json:"plan"`
		Limits map[string]int64 `json:"limits"`
	} `json:"plans"`
}

// LoadCatalogFile reads limit overrides from a JSON file and merges them over
// DefaultCatalog. The file looks like:
//
//	{"plans": [{"plan": "FREE", "limits": {"AI_GENERATIONS": 10}}]}
func LoadCatalogFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read limits config: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse limits config: %w", err)
	}

	catalog := DefaultCatalog()
	for _, entry := range file.Plans {
		plan, err := ParsePlan(entry.Plan)
		if err != nil {
			return nil, fmt.Errorf("limits config: plan %q: %w", entry.Plan, err)
		}
		limits := maps.Clone(catalog[plan])
		if limits == nil {
			limits = make(map[Feature]int64, len(entry.Limits))
		}
		for name, limit := range entry.Limits {
			feature, err := ParseFeature(name)
			if err != nil {
				return nil, fmt.Errorf("limits config: feature %q: %w", name, err)
			}
			limits[feature] = limit
		}
		catalog[plan] = limits
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// Validate checks every plan, feature and limit value in the catalog.
func (c Catalog) Validate() error {
	for plan, limits := range c {
		if _, err := ParsePlan(string(plan)); err != nil {
			return fmt.Errorf("catalog: plan %q: %w", plan, err)
		}
		for feature, limit := range limits {
			if !feature.Valid() {
				return fmt.Errorf("catalog: %s/%s: %w", plan, feature, ErrInvalidFeature)
			}
			if limit < Unlimited {
				return fmt.Errorf("catalog: %s/%s: %w", plan, feature, ErrInvalidLimit)
			}
		}
	}
	return nil
}

// Size returns the number of plan/feature rows the catalog seeds.
func (c Catalog) Size() int {
	n := 0
	for _, limits := range c {
		n += len(limits)
	}
	return n
}
