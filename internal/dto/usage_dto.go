package dto

import "github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/entitlement"

// LimitExceededResponse is the 403 body for a denied action.
type LimitExceededResponse struct {
	Error   bool                `json:"error"`
	Message string              `json:"message"`
	Feature entitlement.Feature `json:"feature"`
	Plan    entitlement.Plan    `json:"plan,omitempty"`
	Current int64               `json:"current"`
	Limit   int64               `json:"limit"`
}

func NewLimitExceeded(d entitlement.Decision) LimitExceededResponse {
	return LimitExceededResponse{
		Error:   true,
		Message: d.Reason,
		Feature: d.Feature,
		Plan:    d.Plan,
		Current: d.Current,
		Limit:   d.Limit,
	}
}

type UsageListResponse struct {
	Plan     entitlement.Plan        `json:"plan"`
	Features []entitlement.UsageInfo `json:"features"`
}

type PlanLimitsResponse struct {
	Plan   entitlement.Plan         `json:"plan"`
	Limits []entitlement.LimitEntry `json:"limits"`
}

type SetLimitRequest struct {
	Limit  *int64 `json:"limit"`
	Active *bool  `json:"active"`
}

type SeedLimitsResponse struct {
	Rows int `json:"rows"`
}
