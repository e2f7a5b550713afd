package handlers

import (
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// LimitsHandler serves plan limit tables and the admin operations on limits
// and counters.
type LimitsHandler struct {
	service *entitlement.Service
	catalog entitlement.Catalog
}

// NewLimitsHandler takes the catalog that POST /admin/limits/seed restores.
func NewLimitsHandler(service *entitlement.Service, catalog entitlement.Catalog) *LimitsHandler {
	return &LimitsHandler{service: service, catalog: catalog}
}

func (h *LimitsHandler) ByPlan(c *fiber.Ctx) error {
	plan, err := entitlement.ParsePlan(c.Params("plan"))
	if err != nil {
		return middleware.QuotaError(c, err)
	}

	limits, err := h.service.GetLimitsByPlan(c.UserContext(), plan)
	if err != nil {
		return middleware.QuotaError(c, err)
	}
	return c.JSON(dto.PlanLimitsResponse{Plan: plan, Limits: limits})
}

func (h *LimitsHandler) Compare(c *fiber.Ctx) error {
	from, err := entitlement.ParsePlan(c.Query("from"))
	if err != nil {
		return middleware.QuotaError(c, err)
	}
	to, err := entitlement.ParsePlan(c.Query("to"))
	if err != nil {
		return middleware.QuotaError(c, err)
	}

	cmp, err := h.service.ComparePlans(c.UserContext(), from, to)
	if err != nil {
		return middleware.QuotaError(c, err)
	}
	return c.JSON(fiber.Map{
		"comparison":   cmp,
		"is_downgrade": cmp.IsDowngrade(),
	})
}

// ResetUsage zeroes a user's counter for one feature.
func (h *LimitsHandler) ResetUsage(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("user_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user ID",
		})
	}
	feature, err := entitlement.ParseFeature(c.Params("feature"))
	if err != nil {
		return middleware.QuotaError(c, err)
	}

	if err := h.service.ResetUsage(c.UserContext(), userID, feature); err != nil {
		return middleware.QuotaError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Usage reset", "user_id": userID, "feature": feature})
}

// SetLimit creates or edits one (plan, feature) row. Omitting "active" keeps
// the row active.
func (h *LimitsHandler) SetLimit(c *fiber.Ctx) error {
	plan, err := entitlement.ParsePlan(c.Params("plan"))
	if err != nil {
		return middleware.QuotaError(c, err)
	}
	feature, err := entitlement.ParseFeature(c.Params("feature"))
	if err != nil {
		return middleware.QuotaError(c, err)
	}

	var req dto.SetLimitRequest
	if err := c.BodyParser(&req); err != nil || req.Limit == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "limit is required",
		})
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	if err := h.service.SetLimit(c.UserContext(), plan, feature, *req.Limit, active); err != nil {
		return middleware.QuotaError(c, err)
	}
	slog.Info("limit updated", "plan", string(plan), "feature", string(feature), "limit", *req.Limit, "active", active)
	return c.JSON(fiber.Map{"plan": plan, "feature": feature, "limit": *req.Limit, "active": active})
}

// Seed writes the configured catalog, restoring any edited rows.
func (h *LimitsHandler) Seed(c *fiber.Ctx) error {
	if err := h.service.SeedLimits(c.UserContext(), h.catalog); err != nil {
		return middleware.QuotaError(c, err)
	}
	return c.JSON(dto.SeedLimitsResponse{Rows: h.catalog.Size()})
}
