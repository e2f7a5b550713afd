package studyhub

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Course struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title       string         `gorm:"size:200;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

type Deck struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	CourseID  *uuid.UUID     `gorm:"type:uuid;index" json:"course_id,omitempty"`
	Title     string         `gorm:"size:200;not null" json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Card struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DeckID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"deck_id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Front     string         `gorm:"type:text;not null" json:"front"`
	Back      string         `gorm:"type:text;not null" json:"back"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// AIGenerationRequest is a queued generation job. A worker outside this
// service picks up pending rows.
type AIGenerationRequest struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	DeckID    *uuid.UUID     `gorm:"type:uuid;index" json:"deck_id,omitempty"`
	Kind      string         `gorm:"size:30;not null" json:"kind"`
	Prompt    string         `gorm:"type:text;not null" json:"prompt"`
	Params    datatypes.JSON `json:"params,omitempty"`
	Status    string         `gorm:"size:20;not null;index" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MeetingRequest asks for a video meeting link for a course session.
type MeetingRequest struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	CourseID    uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `gorm:"size:20;not null" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m *Course) BeforeCreate(tx *gorm.DB) error              { return ensureID(&m.ID) }
func (m *Deck) BeforeCreate(tx *gorm.DB) error                { return ensureID(&m.ID) }
func (m *Card) BeforeCreate(tx *gorm.DB) error                { return ensureID(&m.ID) }
func (m *AIGenerationRequest) BeforeCreate(tx *gorm.DB) error { return ensureID(&m.ID) }
func (m *MeetingRequest) BeforeCreate(tx *gorm.DB) error      { return ensureID(&m.ID) }

func ensureID(id *uuid.UUID) error {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	return nil
}

// --- DTOs ---

type CreateCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type CreateDeckRequest struct {
	Title    string     `json:"title"`
	CourseID *uuid.UUID `json:"course_id"`
}

type CreateCardRequest struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type CreateGenerationRequest struct {
	Kind   string                 `json:"kind"`
	Prompt string                 `json:"prompt"`
	DeckID *uuid.UUID             `json:"deck_id"`
	Params map[string]interface{} `json:"params"`
}

type CreateMeetingRequest struct {
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type ExportBundle struct {
	ExportedAt time.Time `json:"exported_at"`
	Courses    []Course  `json:"courses"`
	Decks      []Deck    `json:"decks"`
	Cards      []Card    `json:"cards"`
}

type Analytics struct {
	Courses        int64            `json:"courses"`
	Decks          int64            `json:"decks"`
	Cards          int64            `json:"cards"`
	CardsPerDeck   float64          `json:"cards_per_deck"`
	Generations    map[string]int64 `json:"generations"`
	LargestDeckID  *uuid.UUID       `json:"largest_deck_id,omitempty"`
	LargestDeckLen int64            `json:"largest_deck_cards"`
}
