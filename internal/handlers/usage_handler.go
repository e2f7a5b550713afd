package handlers

import (
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UsageHandler exposes the caller's own quotas.
type UsageHandler struct {
	service *entitlement.Service
}

func NewUsageHandler(service *entitlement.Service) *UsageHandler {
	return &UsageHandler{service: service}
}

// List returns usage for every feature.
func (h *UsageHandler) List(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	usage, err := h.service.GetAllUsage(c.UserContext(), userID)
	if err != nil {
		return middleware.QuotaError(c, err)
	}

	plan := entitlement.PlanFree
	if len(usage) > 0 {
		plan = usage[0].Plan
	}
	return c.JSON(dto.UsageListResponse{Plan: plan, Features: usage})
}

func (h *UsageHandler) Get(c *fiber.Ctx) error {
	userID, feature, ok := h.target(c)
	if !ok {
		return nil
	}

	info, err := h.service.GetUsage(c.UserContext(), userID, feature)
	if err != nil {
		return middleware.QuotaError(c, err)
	}
	return c.JSON(info)
}

// Check answers whether the caller may perform the action now. A denial is a
// 200 with allowed=false; only errors use other status codes.
func (h *UsageHandler) Check(c *fiber.Ctx) error {
	userID, feature, ok := h.target(c)
	if !ok {
		return nil
	}

	decision, err := h.service.CanPerformAction(c.UserContext(), userID, feature)
	if err != nil {
		return middleware.QuotaError(c, err)
	}
	return c.JSON(decision)
}

// Increment records one use without checking the limit.
func (h *UsageHandler) Increment(c *fiber.Ctx) error {
	userID, feature, ok := h.target(c)
	if !ok {
		return nil
	}

	if err := h.service.IncrementUsage(c.UserContext(), userID, feature); err != nil {
		return middleware.QuotaError(c, err)
	}
	info, err := h.service.GetUsage(c.UserContext(), userID, feature)
	if err != nil {
		return middleware.QuotaError(c, err)
	}
	return c.JSON(info)
}

// Consume checks and records one use atomically; denials answer through
// middleware.Denied.
func (h *UsageHandler) Consume(c *fiber.Ctx) error {
	userID, feature, ok := h.target(c)
	if !ok {
		return nil
	}

	decision, err := h.service.Consume(c.UserContext(), userID, feature)
	if err != nil {
		return middleware.QuotaError(c, err)
	}
	if !decision.Allowed {
		return middleware.Denied(c, decision)
	}
	return c.JSON(decision)
}

// target resolves the caller and the :feature param. When ok is false the
// error response has already been written.
func (h *UsageHandler) target(c *fiber.Ctx) (uuid.UUID, entitlement.Feature, bool) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		_ = unauthorized(c)
		return uuid.Nil, "", false
	}
	feature, err := entitlement.ParseFeature(c.Params("feature"))
	if err != nil {
		_ = middleware.QuotaError(c, err)
		return uuid.Nil, "", false
	}
	return userID, feature, true
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}
