// Package testutil holds helpers shared by package tests: an in-memory
// SQLite database with the schema migrated, a fixed clock and user fixtures.
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/models"
)

// NewDB opens a private in-memory database and migrates the shared models
// plus any extra models given.
func NewDB(t *testing.T, extra ...interface{}) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(append(database.SharedModels(), extra...)...))
	return db
}

// CreateUser inserts a user on the given plan ("" leaves the plan unset).
func CreateUser(t *testing.T, db *gorm.DB, plan string) models.User {
	t.Helper()

	user := models.User{
		Email:            uuid.NewString() + "@example.com",
		Password:         "x",
		SubscriptionPlan: plan,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// FakeClock is a clock that only moves when told to.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
