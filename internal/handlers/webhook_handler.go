package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79/webhook"
)

const maxWebhookBytes = 65536

type WebhookHandler struct {
	subscriptionService *services.SubscriptionService
	endpointSecret      string
}

func NewWebhookHandler(subscriptionService *services.SubscriptionService, endpointSecret string) *WebhookHandler {
	return &WebhookHandler{
		subscriptionService: subscriptionService,
		endpointSecret:      endpointSecret,
	}
}

// HandleStripe verifies the Stripe-Signature header and applies subscription
// events to the user's plan. Events for unknown customers or prices are
// acknowledged so Stripe stops retrying them.
func (h *WebhookHandler) HandleStripe(c *fiber.Ctx) error {
	if h.endpointSecret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: true, Message: "Webhooks not configured",
		})
	}

	body := c.Body()
	if len(body) > maxWebhookBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(dto.ErrorResponse{
			Error: true, Message: "Payload too large",
		})
	}

	event, err := webhook.ConstructEventWithOptions(body, c.Get("Stripe-Signature"), h.endpointSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		slog.Warn("stripe webhook signature failed", "request_id", middleware.RequestID(c), "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Signature verification failed",
		})
	}

	result, err := h.subscriptionService.HandleEvent(c.UserContext(), event)
	switch {
	case errors.Is(err, services.ErrCustomerNotFound), errors.Is(err, services.ErrUnknownPrice):
		slog.Warn("stripe event skipped", "event_id", event.ID, "event_type", string(event.Type), "error", err)
		return c.JSON(dto.StripeWebhookResponse{Received: true})
	case err != nil:
		slog.Error("webhook processing failed",
			"request_id", middleware.RequestID(c),
			"action", string(event.Type),
			"event_id", event.ID,
			"error", err,
		)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to process webhook event",
		})
	}

	slog.Info("webhook processed", "event_id", event.ID, "event_type", string(event.Type), "duplicate", result.Duplicate)
	return c.JSON(dto.StripeWebhookResponse{
		Received: true,
		Handled:  result.UserID != uuid.Nil,
		Plan:     string(result.Plan),
	})
}
