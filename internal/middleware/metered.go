package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/entitlement"
	"github.com/gofiber/fiber/v2"
)

var errHandlerRejected = errors.New("handler answered with a non-2xx status")

// Metered gates a route on the caller's quota for feature. The handler only
// runs when the check allows it, and usage is recorded only when the handler
// answered with a 2xx status.
func Metered(guard *entitlement.Guard, feature entitlement.Feature) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := GetUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		var handlerErr error
		_, err = guard.Run(c.UserContext(), userID, feature, func(context.Context) error {
			if handlerErr = c.Next(); handlerErr != nil {
				return handlerErr
			}
			if status := c.Response().StatusCode(); status < 200 || status > 299 {
				return errHandlerRejected
			}
			return nil
		})

		switch {
		case err == nil:
			return nil
		case handlerErr != nil:
			return handlerErr
		case errors.Is(err, errHandlerRejected):
			return nil
		case errors.Is(err, entitlement.ErrUsageNotRecorded):
			// The action already happened; the caller keeps its response.
			slog.Error("usage not recorded after gated action",
				"request_id", RequestID(c),
				"user_id", userID.String(),
				"feature", string(feature),
				"action", c.Method()+" "+c.Path(),
				"error", err,
			)
			return nil
		default:
			return QuotaError(c, err)
		}
	}
}

// QuotaError writes the response for an error returned by the entitlement
// package. Store failures are logged and answered with 500.
func QuotaError(c *fiber.Ctx, err error) error {
	var denied *entitlement.DeniedError
	switch {
	case errors.As(err, &denied):
		return Denied(c, denied.Decision)
	case errors.Is(err, entitlement.ErrInvalidFeature),
		errors.Is(err, entitlement.ErrInvalidPlan),
		errors.Is(err, entitlement.ErrInvalidLimit):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	case errors.Is(err, entitlement.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: true, Message: "User not found"})
	case errors.Is(err, entitlement.ErrLimitNotConfigured):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	case errors.Is(err, entitlement.ErrLockNotAcquired):
		return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	default:
		slog.Error("entitlement store failure", "request_id", RequestID(c), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to check usage limits",
		})
	}
}

// Denied writes the response for a denied decision: 401 without a caller,
// 404 for a caller that no longer exists, 403 with the usage body otherwise.
func Denied(c *fiber.Ctx, d entitlement.Decision) error {
	switch d.Reason {
	case entitlement.ReasonNotLoggedIn:
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: d.Reason})
	case entitlement.ReasonUserNotFound:
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: true, Message: d.Reason})
	}
	return c.Status(fiber.StatusForbidden).JSON(dto.NewLimitExceeded(d))
}

// RequestID returns the id set by the requestid middleware, or "".
func RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
