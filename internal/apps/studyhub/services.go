package studyhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrCardSides       = errors.New("card front and back are required")
	ErrPromptRequired  = errors.New("prompt is required")
	ErrInvalidKind     = errors.New("kind must be one of: flashcards, summary, quiz")
	ErrInvalidSchedule = errors.New("scheduled_at must be in the future")
	ErrCourseNotFound  = errors.New("course not found")
	ErrDeckNotFound    = errors.New("deck not found")

	ErrGenerationNotFound = errors.New("generation request not found")
)

const (
	maxTitleLen  = 200
	maxPromptLen = 4000
)

var generationKinds = map[string]bool{"flashcards": true, "summary": true, "quiz": true}

type StudyService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStudyService(db *gorm.DB) *StudyService {
	return &StudyService{db: db, now: time.Now}
}

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleRequired
	}
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	return title, nil
}

func (s *StudyService) CreateCourse(ctx context.Context, userID uuid.UUID, req CreateCourseRequest) (*Course, error) {
	title, err := cleanTitle(req.Title)
	if err != nil {
		return nil, err
	}
	course := Course{UserID: userID, Title: title, Description: strings.TrimSpace(req.Description)}
	if err := s.db.WithContext(ctx).Create(&course).Error; err != nil {
		return nil, fmt.Errorf("failed to create course: %w", err)
	}
	return &course, nil
}

func (s *StudyService) ListCourses(ctx context.Context, userID uuid.UUID) ([]Course, error) {
	var courses []Course
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&courses).Error
	return courses, err
}

func (s *StudyService) ownedCourse(ctx context.Context, userID, courseID uuid.UUID) (*Course, error) {
	var course Course
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", courseID, userID).First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCourseNotFound
	}
	return &course, err
}

func (s *StudyService) ownedDeck(ctx context.Context, userID, deckID uuid.UUID) (*Deck, error) {
	var deck Deck
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", deckID, userID).First(&deck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeckNotFound
	}
	return &deck, err
}

func (s *StudyService) CreateDeck(ctx context.Context, userID uuid.UUID, req CreateDeckRequest) (*Deck, error) {
	title, err := cleanTitle(req.Title)
	if err != nil {
		return nil, err
	}
	if req.CourseID != nil {
		if _, err := s.ownedCourse(ctx, userID, *req.CourseID); err != nil {
			return nil, err
		}
	}
	deck := Deck{UserID: userID, CourseID: req.CourseID, Title: title}
	if err := s.db.WithContext(ctx).Create(&deck).Error; err != nil {
		return nil, fmt.Errorf("failed to create deck: %w", err)
	}
	return &deck, nil
}

func (s *StudyService) ListDecks(ctx context.Context, userID uuid.UUID) ([]Deck, error) {
	var decks []Deck
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&decks).Error
	return decks, err
}

func (s *StudyService) CreateCard(ctx context.Context, userID, deckID uuid.UUID, req CreateCardRequest) (*Card, error) {
	front, back := strings.TrimSpace(req.Front), strings.TrimSpace(req.Back)
	if front == "" || back == "" {
		return nil, ErrCardSides
	}
	if _, err := s.ownedDeck(ctx, userID, deckID); err != nil {
		return nil, err
	}
	card := Card{DeckID: deckID, UserID: userID, Front: front, Back: back}
	if err := s.db.WithContext(ctx).Create(&card).Error; err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	return &card, nil
}

func (s *StudyService) ListCards(ctx context.Context, userID, deckID uuid.UUID) ([]Card, error) {
	if _, err := s.ownedDeck(ctx, userID, deckID); err != nil {
		return nil, err
	}
	var cards []Card
	err := s.db.WithContext(ctx).Where("deck_id = ?", deckID).Order("created_at").Find(&cards).Error
	return cards, err
}

// Export returns every course, deck and card the user owns.
func (s *StudyService) Export(ctx context.Context, userID uuid.UUID) (*ExportBundle, error) {
	db := s.db.WithContext(ctx)
	bundle := ExportBundle{
		ExportedAt: s.now().UTC(),
		Courses:    []Course{},
		Decks:      []Deck{},
		Cards:      []Card{},
	}
	if err := db.Where("user_id = ?", userID).Order("created_at").Find(&bundle.Courses).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ?", userID).Order("created_at").Find(&bundle.Decks).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ?", userID).Order("created_at").Find(&bundle.Cards).Error; err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (s *StudyService) Analytics(ctx context.Context, userID uuid.UUID) (*Analytics, error) {
	db := s.db.WithContext(ctx)
	a := Analytics{Generations: map[string]int64{}}

	if err := db.Model(&Course{}).Where("user_id = ?", userID).Count(&a.Courses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Deck{}).Where("user_id = ?", userID).Count(&a.Decks).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Card{}).Where("user_id = ?", userID).Count(&a.Cards).Error; err != nil {
		return nil, err
	}
	if a.Decks > 0 {
		a.CardsPerDeck = float64(a.Cards) / float64(a.Decks)
	}

	var largest struct {
		DeckID uuid.UUID
		Total  int64
	}
	err := db.Model(&Card{}).
		Select("deck_id, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("deck_id").
		Order("total DESC").
		Limit(1).
		Scan(&largest).Error
	if err != nil {
		return nil, err
	}
	if largest.Total > 0 {
		a.LargestDeckID = &largest.DeckID
		a.LargestDeckLen = largest.Total
	}

	var rows []struct {
		Status string
		Total  int64
	}
	if err := db.Model(&AIGenerationRequest{}).
		Select("status, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		a.Generations[r.Status] = r.Total
	}
	return &a, nil
}

// RequestGeneration queues an AI generation job in the pending state.
func (s *StudyService) RequestGeneration(ctx context.Context, userID uuid.UUID, req CreateGenerationRequest) (*AIGenerationRequest, error) {
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if !generationKinds[kind] {
		return nil, ErrInvalidKind
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrPromptRequired
	}
	if len(prompt) > maxPromptLen {
		prompt = prompt[:maxPromptLen]
	}
	if req.DeckID != nil {
		if _, err := s.ownedDeck(ctx, userID, *req.DeckID); err != nil {
			return nil, err
		}
	}

	job := AIGenerationRequest{
		UserID: userID,
		DeckID: req.DeckID,
		Kind:   kind,
		Prompt: prompt,
		Status: "pending",
	}
	if len(req.Params) > 0 {
		b, err := json.Marshal(req.Params)
		if err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		job.Params = datatypes.JSON(b)
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, fmt.Errorf("failed to queue generation: %w", err)
	}
	return &job, nil
}

func (s *StudyService) ListGenerations(ctx context.Context, userID uuid.UUID) ([]AIGenerationRequest, error) {
	var jobs []AIGenerationRequest
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Limit(50).Find(&jobs).Error
	return jobs, err
}

// RequestMeeting records a meeting link request for one of the user's courses.
func (s *StudyService) RequestMeeting(ctx context.Context, userID, courseID uuid.UUID, req CreateMeetingRequest) (*MeetingRequest, error) {
	title, err := cleanTitle(req.Title)
	if err != nil {
		return nil, err
	}
	if !req.ScheduledAt.After(s.now()) {
		return nil, ErrInvalidSchedule
	}
	if _, err := s.ownedCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}

	meeting := MeetingRequest{
		UserID:      userID,
		CourseID:    courseID,
		Title:       title,
		ScheduledAt: req.ScheduledAt.UTC(),
		Status:      "pending",
	}
	if err := s.db.WithContext(ctx).Create(&meeting).Error; err != nil {
		return nil, fmt.Errorf("failed to request meeting: %w", err)
	}
	return &meeting, nil
}

var ErrInvalidStatus = errors.New("status must be one of: pending, running, done, failed")

var generationStatuses = map[string]bool{"pending": true, "running": true, "done": true, "failed": true}

// PendingGenerations lists queued jobs across all users, oldest first.
func (s *StudyService) PendingGenerations(ctx context.Context, status string, limit int) ([]AIGenerationRequest, error) {
	if status == "" {
		status = "pending"
	}
	if !generationStatuses[status] {
		return nil, ErrInvalidStatus
	}
	var jobs []AIGenerationRequest
	err := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at").Limit(limit).Find(&jobs).Error
	return jobs, err
}

// SetGenerationStatus moves a job to a new status.
func (s *StudyService) SetGenerationStatus(ctx context.Context, id uuid.UUID, status string) error {
	if !generationStatuses[status] {
		return ErrInvalidStatus
	}
	result := s.db.WithContext(ctx).Model(&AIGenerationRequest{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGenerationNotFound
	}
	return nil
}
