package studyhub

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// StudyHandler serves study resources. Routes that count against a quota
// are wrapped in middleware.Metered by the plugin, so these handlers only
// need to answer with a non-2xx status when nothing was created.
type StudyHandler struct {
	service *StudyService
}

func NewStudyHandler(service *StudyService) *StudyHandler {
	return &StudyHandler{service: service}
}

func (h *StudyHandler) CreateCourse(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	course, err := h.service.CreateCourse(c.UserContext(), userID, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(course)
}

func (h *StudyHandler) ListCourses(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	courses, err := h.service.ListCourses(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"courses": courses})
}

func (h *StudyHandler) CreateDeck(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req CreateDeckRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	deck, err := h.service.CreateDeck(c.UserContext(), userID, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(deck)
}

func (h *StudyHandler) ListDecks(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	decks, err := h.service.ListDecks(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"decks": decks})
}

func (h *StudyHandler) CreateCard(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	deckID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid deck ID")
	}
	var req CreateCardRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	card, err := h.service.CreateCard(c.UserContext(), userID, deckID, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(card)
}

func (h *StudyHandler) ListCards(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	deckID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid deck ID")
	}
	cards, err := h.service.ListCards(c.UserContext(), userID, deckID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"cards": cards})
}

func (h *StudyHandler) Export(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	bundle, err := h.service.Export(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="studyhub-export.json"`)
	return c.JSON(bundle)
}

func (h *StudyHandler) Analytics(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	analytics, err := h.service.Analytics(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(analytics)
}

func (h *StudyHandler) RequestGeneration(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req CreateGenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	job, err := h.service.RequestGeneration(c.UserContext(), userID, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(job)
}

func (h *StudyHandler) ListGenerations(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	jobs, err := h.service.ListGenerations(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"generations": jobs})
}

func (h *StudyHandler) RequestMeeting(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	courseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid course ID")
	}
	var req CreateMeetingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	meeting, err := h.service.RequestMeeting(c.UserContext(), userID, courseID, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(meeting)
}

// AdminListGenerations lists jobs by status for the worker dashboard.
func (h *StudyHandler) AdminListGenerations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	jobs, err := h.service.PendingGenerations(c.UserContext(), c.Query("status"), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"generations": jobs})
}

func (h *StudyHandler) AdminSetGenerationStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid generation ID")
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := h.service.SetGenerationStatus(c.UserContext(), id, req.Status); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "status": req.Status})
}

func (h *StudyHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrTitleRequired),
		errors.Is(err, ErrCardSides),
		errors.Is(err, ErrPromptRequired),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidSchedule),
		errors.Is(err, ErrInvalidStatus):
		return badRequest(c, err.Error())
	case errors.Is(err, ErrCourseNotFound), errors.Is(err, ErrDeckNotFound), errors.Is(err, ErrGenerationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	}
	slog.Error("studyhub request failed",
		"request_id", middleware.RequestID(c),
		"action", c.Method()+" "+c.Path(),
		"error", err,
	)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: true, Message: "Internal server error",
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: msg})
}
