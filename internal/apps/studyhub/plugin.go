package studyhub

import (
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type StudyHubPlugin struct {
	guard *entitlement.Guard
}

func New(guard *entitlement.Guard) *StudyHubPlugin {
	return &StudyHubPlugin{guard: guard}
}

func (p *StudyHubPlugin) ID() string { return "studyhub" }

func (p *StudyHubPlugin) Models() []interface{} {
	return []interface{}{
		&Course{},
		&Deck{},
		&Card{},
		&AIGenerationRequest{},
		&MeetingRequest{},
	}
}

func (p *StudyHubPlugin) RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	handler := NewStudyHandler(NewStudyService(db))
	metered := func(f entitlement.Feature) fiber.Handler {
		return middleware.Metered(p.guard, f)
	}

	router.Get("/courses", handler.ListCourses)
	router.Post("/courses", metered(entitlement.FeatureCoursesCreated), handler.CreateCourse)
	router.Post("/courses/:id/meetings", metered(entitlement.FeatureGoogleMeetCreated), handler.RequestMeeting)

	router.Get("/decks", handler.ListDecks)
	router.Post("/decks", metered(entitlement.FeatureDecksCreated), handler.CreateDeck)
	router.Get("/decks/:id/cards", handler.ListCards)
	router.Post("/decks/:id/cards", metered(entitlement.FeatureCardsCreated), handler.CreateCard)

	router.Get("/export", metered(entitlement.FeatureDataExports), handler.Export)
	router.Get("/analytics", metered(entitlement.FeatureAnalyticsViews), handler.Analytics)

	router.Get("/ai/generations", handler.ListGenerations)
	router.Post("/ai/generations", metered(entitlement.FeatureAIGenerations), handler.RequestGeneration)
}

func (p *StudyHubPlugin) RegisterAdminRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	handler := NewStudyHandler(NewStudyService(db))

	router.Get("/studyhub/generations", handler.AdminListGenerations)
	router.Put("/studyhub/generations/:id", handler.AdminSetGenerationStatus)
}
