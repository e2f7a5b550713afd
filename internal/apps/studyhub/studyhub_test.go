package studyhub

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/testutil"
)

const secret = "studyhub-secret"

type harness struct {
	app *fiber.App
	db  *gorm.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	p := &StudyHubPlugin{}
	db := testutil.NewDB(t, p.Models()...)

	svc := entitlement.NewService(db, entitlement.Options{})
	require.NoError(t, svc.SeedLimits(context.Background(), entitlement.DefaultCatalog()))
	p.guard = entitlement.NewGuard(svc, nil)

	cfg := &config.Config{JWTSecret: secret}
	app := fiber.New()
	p.RegisterRoutes(app.Group("/api/p", middleware.JWTProtected(cfg)), db, cfg)
	p.RegisterAdminRoutes(app.Group("/api/admin"), db, cfg)
	return &harness{app: app, db: db}
}

func tokenFor(t *testing.T, user models.User) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": user.ID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (h *harness) usage(t *testing.T, userID uuid.UUID, feature entitlement.Feature) int64 {
	t.Helper()
	var rows []models.UsageTracking
	require.NoError(t, h.db.Where("user_id = ? AND feature = ?", userID, string(feature)).Find(&rows).Error)
	if len(rows) == 0 {
		return 0
	}
	return rows[0].Count
}

func TestCoursesAreCappedOnFreePlan(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.db, "FREE")
	token := tokenFor(t, user)

	for i := 0; i < 3; i++ {
		status, body := h.do(t, http.MethodPost, "/api/p/courses", token, CreateCourseRequest{Title: "Biology"})
		require.Equal(t, http.StatusCreated, status, string(body))
	}

	status, body := h.do(t, http.MethodPost, "/api/p/courses", token, CreateCourseRequest{Title: "Chemistry"})
	require.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, string(body), "You have used 3 of 3 courses allowed on the FREE plan this period")

	var courses int64
	require.NoError(t, h.db.Model(&Course{}).Where("user_id = ?", user.ID).Count(&courses).Error)
	assert.Equal(t, int64(3), courses)
	assert.Equal(t, int64(3), h.usage(t, user.ID, entitlement.FeatureCoursesCreated))

	status, body = h.do(t, http.MethodGet, "/api/p/courses", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Biology")
}

func TestRejectedRequestsAreNotCounted(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.db, "FREE")
	token := tokenFor(t, user)

	status, _ := h.do(t, http.MethodPost, "/api/p/courses", token, CreateCourseRequest{Title: "   "})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(t, http.MethodPost, "/api/p/decks/"+uuid.NewString()+"/cards", token, CreateCardRequest{Front: "a", Back: "b"})
	assert.Equal(t, http.StatusNotFound, status)

	assert.Zero(t, h.usage(t, user.ID, entitlement.FeatureCoursesCreated))
	assert.Zero(t, h.usage(t, user.ID, entitlement.FeatureCardsCreated))
}

func TestDecksCardsAndExport(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.db, "STUDENT")
	token := tokenFor(t, user)

	status, body := h.do(t, http.MethodPost, "/api/p/decks", token, CreateDeckRequest{Title: "Verbs"})
	require.Equal(t, http.StatusCreated, status, string(body))
	var deck Deck
	require.NoError(t, json.Unmarshal(body, &deck))

	for _, side := range []string{"ser", "estar"} {
		status, body = h.do(t, http.MethodPost, "/api/p/decks/"+deck.ID.String()+"/cards", token, CreateCardRequest{Front: side, Back: "to be"})
		require.Equal(t, http.StatusCreated, status, string(body))
	}
	assert.Equal(t, int64(2), h.usage(t, user.ID, entitlement.FeatureCardsCreated))

	other := testutil.CreateUser(t, h.db, "STUDENT")
	status, _ = h.do(t, http.MethodGet, "/api/p/decks/"+deck.ID.String()+"/cards", tokenFor(t, other), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = h.do(t, http.MethodGet, "/api/p/export", token, nil)
	require.Equal(t, http.StatusOK, status)
	var bundle ExportBundle
	require.NoError(t, json.Unmarshal(body, &bundle))
	assert.Len(t, bundle.Decks, 1)
	assert.Len(t, bundle.Cards, 2)
	assert.Empty(t, bundle.Courses)
	assert.Equal(t, int64(1), h.usage(t, user.ID, entitlement.FeatureDataExports))

	status, body = h.do(t, http.MethodGet, "/api/p/analytics", token, nil)
	require.Equal(t, http.StatusOK, status)
	var analytics Analytics
	require.NoError(t, json.Unmarshal(body, &analytics))
	assert.Equal(t, int64(2), analytics.Cards)
	assert.Equal(t, 2.0, analytics.CardsPerDeck)
	require.NotNil(t, analytics.LargestDeckID)
	assert.Equal(t, deck.ID, *analytics.LargestDeckID)
}

func TestExportIsCappedOnFreePlan(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.db, "FREE")
	token := tokenFor(t, user)

	status, _ := h.do(t, http.MethodGet, "/api/p/export", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodGet, "/api/p/export", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestAIGenerationRequests(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.db, "FREE")
	token := tokenFor(t, user)

	status, _ := h.do(t, http.MethodPost, "/api/p/ai/generations", token, CreateGenerationRequest{Kind: "poem", Prompt: "x"})
	assert.Equal(t, http.StatusBadRequest, status)

	for i := 0; i < 5; i++ {
		status, body := h.do(t, http.MethodPost, "/api/p/ai/generations", token, CreateGenerationRequest{
			Kind:   "flashcards",
			Prompt: "Photosynthesis basics",
			Params: map[string]interface{}{"count": 10},
		})
		require.Equal(t, http.StatusAccepted, status, string(body))
	}
	status, _ = h.do(t, http.MethodPost, "/api/p/ai/generations", token, CreateGenerationRequest{Kind: "quiz", Prompt: "one more"})
	assert.Equal(t, http.StatusForbidden, status)

	var jobs []AIGenerationRequest
	require.NoError(t, h.db.Where("user_id = ?", user.ID).Find(&jobs).Error)
	require.Len(t, jobs, 5)
	assert.Equal(t, "pending", jobs[0].Status)
	assert.JSONEq(t, `{"count":10}`, string(jobs[0].Params))

	status, body := h.do(t, http.MethodGet, "/api/admin/studyhub/generations", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "Photosynthesis basics")

	status, _ = h.do(t, http.MethodPut, "/api/admin/studyhub/generations/"+jobs[0].ID.String(), "", map[string]string{"status": "done"})
	require.Equal(t, http.StatusOK, status)
	status, _ = h.do(t, http.MethodPut, "/api/admin/studyhub/generations/"+jobs[0].ID.String(), "", map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMeetingRequestsFailOpenWithoutLimitRows(t *testing.T) {
	h := newHarness(t)
	user := testutil.CreateUser(t, h.db, "FREE")
	token := tokenFor(t, user)

	status, body := h.do(t, http.MethodPost, "/api/p/courses", token, CreateCourseRequest{Title: "History"})
	require.Equal(t, http.StatusCreated, status)
	var course Course
	require.NoError(t, json.Unmarshal(body, &course))

	when := time.Now().Add(48 * time.Hour)
	for i := 0; i < 4; i++ {
		status, body = h.do(t, http.MethodPost, "/api/p/courses/"+course.ID.String()+"/meetings", token,
			CreateMeetingRequest{Title: "Review session", ScheduledAt: when})
		require.Equal(t, http.StatusCreated, status, string(body))
	}
	assert.Equal(t, int64(4), h.usage(t, user.ID, entitlement.FeatureGoogleMeetCreated))

	status, _ = h.do(t, http.MethodPost, "/api/p/courses/"+course.ID.String()+"/meetings", token,
		CreateMeetingRequest{Title: "Past", ScheduledAt: time.Now().Add(-time.Hour)})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMissingTokenIsRejected(t *testing.T) {
	h := newHarness(t)

	status, _ := h.do(t, http.MethodPost, "/api/p/courses", "", CreateCourseRequest{Title: "x"})

	assert.Equal(t, http.StatusUnauthorized, status)
}
