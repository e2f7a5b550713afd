package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/testutil"
)

type failingHandler struct{}

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func (f failingHandler) WithAttrs([]slog.Attr) slog.Handler { return f }

func (f failingHandler) WithGroup(string) slog.Handler { return f }

func TestMultiHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMultiHandler(
		failingHandler{},
		NewJSONHandler(&buf, "info"),
	)).With("feature", "AI_GENERATIONS")

	logger.Debug("hidden")
	logger.Info("usage reset", "user_id", "u1")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "usage reset", line["msg"])
	assert.Equal(t, "AI_GENERATIONS", line["feature"])
	assert.Equal(t, "u1", line["user_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestPGHandler(t *testing.T) {
	db := testutil.NewDB(t)
	h := newPGHandler(db, time.Hour)
	logger := slog.New(h).With("request_id", "req-1")

	logger.Info("not persisted")
	logger.Error("increment failed",
		"user_id", "6f1c", "feature", "DECKS_CREATED", "plan", "FREE",
		"action", "increment", "error", errors.New("db gone"), "attempt", 2)
	logger.WithGroup("stripe").Error("webhook rejected", "event", "evt_1")
	h.Stop()

	var logs []models.SystemLog
	require.NoError(t, db.Order("message").Find(&logs).Error)
	require.Len(t, logs, 2)

	entry := logs[0]
	assert.Equal(t, "increment failed", entry.Message)
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "req-1", entry.RequestID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "6f1c", *entry.UserID)
	assert.Equal(t, "DECKS_CREATED", entry.Feature)
	assert.Equal(t, "FREE", entry.Plan)
	assert.Equal(t, "increment", entry.Action)
	assert.Equal(t, "db gone", entry.Error)
	assert.JSONEq(t, `{"attempt":2}`, string(entry.Extra))

	assert.Equal(t, "req-1", logs[1].RequestID)
	assert.JSONEq(t, `{"stripe.event":"evt_1"}`, string(logs[1].Extra))
}

func TestPurgeOlderThan(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&[]models.SystemLog{
		{Timestamp: now.AddDate(0, 0, -40), Level: "ERROR", Message: "old"},
		{Timestamp: now.AddDate(0, 0, -1), Level: "ERROR", Message: "recent"},
	}).Error)

	deleted := PurgeOlderThan(db, now.AddDate(0, 0, -30))

	assert.Equal(t, int64(1), deleted)
	var left []models.SystemLog
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, "recent", left[0].Message)
}
