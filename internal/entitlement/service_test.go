package entitlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/studyhub-backend/internal/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	svc   *entitlement.Service
	clock *testutil.FakeClock
}

func newFixture(t *testing.T, opts entitlement.Options) fixture {
	t.Helper()

	db := testutil.NewDB(t)
	clock := testutil.NewFakeClock(epoch)
	opts.Clock = clock
	svc := entitlement.NewService(db, opts)
	require.NoError(t, svc.SeedLimits(context.Background(), entitlement.DefaultCatalog()))
	return fixture{db: db, svc: svc, clock: clock}
}

func (f fixture) counter(t *testing.T, userID uuid.UUID, feature entitlement.Feature) *models.UsageTracking {
	t.Helper()
	var rows []models.UsageTracking
	require.NoError(t, f.db.Where("user_id = ? AND feature = ?", userID, string(feature)).Find(&rows).Error)
	require.LessOrEqual(t, len(rows), 1)
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}

func (f fixture) putCounter(t *testing.T, userID uuid.UUID, feature entitlement.Feature, count int64, lastReset time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.UsageTracking{
		UserID:    userID,
		Feature:   string(feature),
		Count:     count,
		LastReset: lastReset,
	}).Error)
}

func TestService_GetLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("seeded limit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		limit, err := f.svc.GetLimit(ctx, entitlement.PlanFree, entitlement.FeatureAIGenerations)

		require.NoError(t, err)
		assert.Equal(t, int64(5), limit)
	})

	t.Run("unlimited sentinel", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		limit, err := f.svc.GetLimit(ctx, entitlement.PlanStudentPro, entitlement.FeatureCardsCreated)

		require.NoError(t, err)
		assert.Equal(t, entitlement.Unlimited, limit)
	})

	t.Run("unseeded feature fails open", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		limit, err := f.svc.GetLimit(ctx, entitlement.PlanFree, entitlement.FeatureGoogleMeetCreated)

		require.NoError(t, err)
		assert.Equal(t, entitlement.Unlimited, limit)
	})

	t.Run("unseeded feature with deny policy", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{Unseeded: entitlement.DenyUnseeded})

		_, err := f.svc.GetLimit(ctx, entitlement.PlanFree, entitlement.FeatureGoogleMeetCreated)

		assert.ErrorIs(t, err, entitlement.ErrLimitNotConfigured)
	})

	t.Run("inactive row counts as unseeded", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		require.NoError(t, f.svc.SetLimit(ctx, entitlement.PlanFree, entitlement.FeatureDataExports, 1, false))

		limit, err := f.svc.GetLimit(ctx, entitlement.PlanFree, entitlement.FeatureDataExports)

		require.NoError(t, err)
		assert.Equal(t, entitlement.Unlimited, limit)
	})

	t.Run("invalid feature", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		_, err := f.svc.GetLimit(ctx, entitlement.PlanFree, entitlement.Feature("TELEPORTS"))

		assert.ErrorIs(t, err, entitlement.ErrInvalidFeature)
	})
}

func TestService_CanPerformAction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("allowed iff count below limit", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			limit   int64
			count   int64
			allowed bool
		}{
			{"zero limit", 0, 0, false},
			{"fresh user", 3, 0, true},
			{"one below", 3, 2, true},
			{"at limit", 3, 3, false},
			{"overshoot", 3, 7, false},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				f := newFixture(t, entitlement.Options{})
				require.NoError(t, f.svc.SetLimit(ctx, entitlement.PlanStudent, entitlement.FeatureDecksCreated, tt.limit, true))
				user := testutil.CreateUser(t, f.db, "STUDENT")
				if tt.count > 0 {
					f.putCounter(t, user.ID, entitlement.FeatureDecksCreated, tt.count, epoch)
				}

				d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureDecksCreated)

				require.NoError(t, err)
				assert.Equal(t, tt.allowed, d.Allowed)
				assert.Equal(t, tt.count, d.Current)
				assert.Equal(t, tt.limit, d.Limit)
				if tt.allowed {
					assert.Empty(t, d.Reason)
				} else {
					assert.Contains(t, d.Reason, "decks")
				}
			})
		}
	})

	t.Run("free plan AI generations run out after five", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")

		for i := 0; i < 5; i++ {
			d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureAIGenerations)
			require.NoError(t, err)
			require.True(t, d.Allowed, "attempt %d", i+1)
			require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureAIGenerations))
		}

		assert.Equal(t, int64(5), f.counter(t, user.ID, entitlement.FeatureAIGenerations).Count)

		d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureAIGenerations)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, int64(5), d.Current)
		assert.Equal(t, int64(5), d.Limit)
		assert.Equal(t, entitlement.PlanFree, d.Plan)
		assert.Contains(t, d.Reason, "AI generations")
	})

	t.Run("unlimited ignores count", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "STUDENTPRO")
		f.putCounter(t, user.ID, entitlement.FeatureCardsCreated, 10000, epoch)

		d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureCardsCreated)

		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, entitlement.Unlimited, d.Limit)
		assert.Equal(t, int64(10000), d.Current)
	})

	t.Run("unseeded feature fails open on every plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		for _, plan := range entitlement.Plans() {
			user := testutil.CreateUser(t, f.db, string(plan))
			f.putCounter(t, user.ID, entitlement.FeatureGoogleMeetCreated, 999, epoch)

			d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureGoogleMeetCreated)

			require.NoError(t, err)
			assert.True(t, d.Allowed, string(plan))
		}
	})

	t.Run("unseeded feature with deny policy", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{Unseeded: entitlement.DenyUnseeded})
		user := testutil.CreateUser(t, f.db, "STUDENTPRO")

		d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureGoogleMeetCreated)

		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, "No limit configured for Google Meet links", d.Reason)
	})

	t.Run("missing plan defaults to free", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "")

		d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureCoursesCreated)

		require.NoError(t, err)
		assert.Equal(t, entitlement.PlanFree, d.Plan)
		assert.Equal(t, int64(3), d.Limit)
	})

	t.Run("legacy plan has no rows and fails open", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "PRO")

		d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureAIGenerations)

		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, entitlement.PlanLegacyPro, d.Plan)
	})

	t.Run("not logged in", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		d, err := f.svc.CanPerformAction(ctx, uuid.Nil, entitlement.FeatureAIGenerations)

		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, "Not logged in", d.Reason)
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		d, err := f.svc.CanPerformAction(ctx, uuid.New(), entitlement.FeatureAIGenerations)

		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, "User not found", d.Reason)
	})

	t.Run("invalid feature is an error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")

		_, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.Feature("nope"))

		assert.ErrorIs(t, err, entitlement.ErrInvalidFeature)
	})

	t.Run("expired window reads as zero without writing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		old := epoch.Add(-31 * 24 * time.Hour)
		f.putCounter(t, user.ID, entitlement.FeatureAIGenerations, 5, old)

		d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureAIGenerations)

		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(0), d.Current)

		stored := f.counter(t, user.ID, entitlement.FeatureAIGenerations)
		assert.Equal(t, int64(5), stored.Count)
		assert.WithinDuration(t, old, stored.LastReset, time.Second)
	})

	t.Run("repeated calls give the same answer", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		f.putCounter(t, user.ID, entitlement.FeatureDataExports, 1, epoch)

		first, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureDataExports)
		require.NoError(t, err)
		second, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureDataExports)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int64(1), f.counter(t, user.ID, entitlement.FeatureDataExports).Count)
	})
}

func TestService_IncrementUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates counter at one", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")

		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureCoursesCreated))

		c := f.counter(t, user.ID, entitlement.FeatureCoursesCreated)
		require.NotNil(t, c)
		assert.Equal(t, int64(1), c.Count)
		assert.WithinDuration(t, epoch, c.LastReset, time.Second)
	})

	t.Run("two increments add two and keep the window", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		start := epoch.Add(-10 * 24 * time.Hour)
		f.putCounter(t, user.ID, entitlement.FeatureCardsCreated, 4, start)

		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureCardsCreated))
		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureCardsCreated))

		c := f.counter(t, user.ID, entitlement.FeatureCardsCreated)
		assert.Equal(t, int64(6), c.Count)
		assert.WithinDuration(t, start, c.LastReset, time.Second)
	})

	t.Run("rollover discards the old count", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		f.putCounter(t, user.ID, entitlement.FeatureAIGenerations, 47, epoch.Add(-31*24*time.Hour))

		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureAIGenerations))

		c := f.counter(t, user.ID, entitlement.FeatureAIGenerations)
		assert.Equal(t, int64(1), c.Count)
		assert.WithinDuration(t, epoch, c.LastReset, time.Second)
	})

	t.Run("rollover boundary is inclusive", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureDecksCreated))
		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureDecksCreated))

		f.clock.Advance(entitlement.DefaultRollover - time.Second)
		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureDecksCreated))
		assert.Equal(t, int64(3), f.counter(t, user.ID, entitlement.FeatureDecksCreated).Count)

		f.clock.Advance(time.Second)
		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureDecksCreated))
		c := f.counter(t, user.ID, entitlement.FeatureDecksCreated)
		assert.Equal(t, int64(1), c.Count)
		assert.WithinDuration(t, f.clock.Now(), c.LastReset, time.Second)
	})

	t.Run("custom rollover period", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{Rollover: 24 * time.Hour})
		user := testutil.CreateUser(t, f.db, "FREE")
		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureDataExports))

		f.clock.Advance(25 * time.Hour)
		require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureDataExports))

		assert.Equal(t, int64(1), f.counter(t, user.ID, entitlement.FeatureDataExports).Count)
	})

	t.Run("does not check the limit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")

		for i := 0; i < 3; i++ {
			require.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureDataExports))
		}

		assert.Equal(t, int64(3), f.counter(t, user.ID, entitlement.FeatureDataExports).Count)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, f.svc.IncrementUsage(ctx, user.ID, entitlement.FeatureCardsCreated))
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(20), f.counter(t, user.ID, entitlement.FeatureCardsCreated).Count)
	})

	t.Run("rejects anonymous and unknown features", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		assert.ErrorIs(t, f.svc.IncrementUsage(ctx, uuid.Nil, entitlement.FeatureCardsCreated), entitlement.ErrNotLoggedIn)
		assert.ErrorIs(t, f.svc.IncrementUsage(ctx, uuid.New(), entitlement.Feature("X")), entitlement.ErrInvalidFeature)
	})
}

func TestService_ResetUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("zeroes count and refreshes window", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		f.putCounter(t, user.ID, entitlement.FeatureAIGenerations, 5, epoch.Add(-3*24*time.Hour))

		require.NoError(t, f.svc.ResetUsage(ctx, user.ID, entitlement.FeatureAIGenerations))

		c := f.counter(t, user.ID, entitlement.FeatureAIGenerations)
		assert.Equal(t, int64(0), c.Count)
		assert.WithinDuration(t, epoch, c.LastReset, time.Second)

		d, err := f.svc.CanPerformAction(ctx, user.ID, entitlement.FeatureAIGenerations)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("absent counter stays absent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")

		require.NoError(t, f.svc.ResetUsage(ctx, user.ID, entitlement.FeatureAIGenerations))

		assert.Nil(t, f.counter(t, user.ID, entitlement.FeatureAIGenerations))
	})
}

func TestService_Consume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stops at the limit", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")

		for i := 1; i <= 3; i++ {
			d, err := f.svc.Consume(ctx, user.ID, entitlement.FeatureCoursesCreated)
			require.NoError(t, err)
			require.True(t, d.Allowed)
			assert.Equal(t, int64(i), d.Current)
		}

		d, err := f.svc.Consume(ctx, user.ID, entitlement.FeatureCoursesCreated)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, int64(3), f.counter(t, user.ID, entitlement.FeatureCoursesCreated).Count)
	})

	t.Run("first use of a feature takes the only slot", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		require.Nil(t, f.counter(t, user.ID, entitlement.FeatureDataExports))

		first, err := f.svc.Consume(ctx, user.ID, entitlement.FeatureDataExports)
		require.NoError(t, err)
		second, err := f.svc.Consume(ctx, user.ID, entitlement.FeatureDataExports)
		require.NoError(t, err)

		assert.True(t, first.Allowed)
		assert.Equal(t, int64(1), first.Current)
		assert.False(t, second.Allowed)
		counter := f.counter(t, user.ID, entitlement.FeatureDataExports)
		require.NotNil(t, counter)
		assert.Equal(t, int64(1), counter.Count)
		assert.True(t, counter.LastReset.Equal(epoch))
	})

	t.Run("denial on a fresh feature leaves no counter", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		require.NoError(t, f.svc.SetLimit(ctx, entitlement.PlanFree, entitlement.FeatureDataExports, 0, true))
		user := testutil.CreateUser(t, f.db, "FREE")

		d, err := f.svc.Consume(ctx, user.ID, entitlement.FeatureDataExports)

		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, int64(0), d.Limit)
		assert.Nil(t, f.counter(t, user.ID, entitlement.FeatureDataExports))
	})

	t.Run("unlimited consume creates the counter on increment", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "STUDENTPRO")

		d, err := f.svc.Consume(ctx, user.ID, entitlement.FeatureCoursesCreated)

		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(1), f.counter(t, user.ID, entitlement.FeatureCoursesCreated).Count)
	})

	// SQLite runs on one connection here, so these transactions execute one
	// at a time. The row lock that serializes them on Postgres is taken in
	// lockCounter, which inserts the counter first when it is missing.
	t.Run("concurrent consumers never pass the cap", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := f.svc.Consume(ctx, user.ID, entitlement.FeatureAIGenerations)
				if !assert.NoError(t, err) {
					return
				}
				if d.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, allowed)
		assert.Equal(t, int64(5), f.counter(t, user.ID, entitlement.FeatureAIGenerations).Count)
	})

	t.Run("expired window starts over", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		f.putCounter(t, user.ID, entitlement.FeatureDataExports, 1, epoch.Add(-40*24*time.Hour))

		d, err := f.svc.Consume(ctx, user.ID, entitlement.FeatureDataExports)

		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(1), d.Current)
		assert.Equal(t, int64(1), f.counter(t, user.ID, entitlement.FeatureDataExports).Count)
	})

	t.Run("denied user writes nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		ghost := uuid.New()

		d, err := f.svc.Consume(ctx, ghost, entitlement.FeatureDataExports)

		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Nil(t, f.counter(t, ghost, entitlement.FeatureDataExports))
	})
}

func TestService_GetUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reports remaining and reset time", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		f.putCounter(t, user.ID, entitlement.FeatureAIGenerations, 4, epoch)

		info, err := f.svc.GetUsage(ctx, user.ID, entitlement.FeatureAIGenerations)

		require.NoError(t, err)
		assert.Equal(t, int64(4), info.Current)
		assert.Equal(t, int64(5), info.Limit)
		assert.Equal(t, int64(1), info.Remaining)
		assert.Equal(t, 80, info.Percentage)
		assert.True(t, info.Warning)
		assert.True(t, info.Configured)
		require.NotNil(t, info.ResetsAt)
		assert.WithinDuration(t, epoch.Add(entitlement.DefaultRollover), *info.ResetsAt, time.Second)
	})

	t.Run("stale window keeps the stored count visible", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		user := testutil.CreateUser(t, f.db, "FREE")
		f.putCounter(t, user.ID, entitlement.FeatureAIGenerations, 5, epoch.Add(-60*24*time.Hour))

		info, err := f.svc.GetUsage(ctx, user.ID, entitlement.FeatureAIGenerations)

		require.NoError(t, err)
		assert.Equal(t, int64(0), info.Current)
		assert.Equal(t, int64(5), info.StoredCount)
		assert.Nil(t, info.ResetsAt)
		assert.False(t, info.Warning)
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		_, err := f.svc.GetUsage(ctx, uuid.New(), entitlement.FeatureAIGenerations)

		assert.ErrorIs(t, err, entitlement.ErrUserNotFound)
	})
}

func TestService_GetAllUsage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, entitlement.Options{})
	user := testutil.CreateUser(t, f.db, "STUDENT")
	f.putCounter(t, user.ID, entitlement.FeatureCoursesCreated, 9, epoch)

	all, err := f.svc.GetAllUsage(ctx, user.ID)

	require.NoError(t, err)
	require.Len(t, all, len(entitlement.Features()))
	for i, feature := range entitlement.Features() {
		assert.Equal(t, feature, all[i].Feature)
		assert.Equal(t, entitlement.PlanStudent, all[i].Plan)
	}

	courses := all[0]
	assert.Equal(t, int64(9), courses.Current)
	assert.Equal(t, int64(10), courses.Limit)
	assert.Equal(t, 90, courses.Percentage)
	assert.True(t, courses.Warning)

	meet := all[len(all)-1]
	assert.Equal(t, entitlement.FeatureGoogleMeetCreated, meet.Feature)
	assert.False(t, meet.Configured)
	assert.Equal(t, entitlement.Unlimited, meet.Limit)
	assert.Equal(t, entitlement.Unlimited, meet.Remaining)
	assert.Equal(t, -1, meet.Percentage)
}

func TestService_Limits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("limits by plan follow feature order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		entries, err := f.svc.GetLimitsByPlan(ctx, entitlement.PlanFree)

		require.NoError(t, err)
		require.Len(t, entries, 6)
		assert.Equal(t, entitlement.LimitEntry{Feature: entitlement.FeatureCoursesCreated, Limit: 3}, entries[0])
		assert.Equal(t, entitlement.LimitEntry{Feature: entitlement.FeatureAnalyticsViews, Limit: 10}, entries[5])
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		_, err := f.svc.GetLimitsByPlan(ctx, entitlement.Plan("GOLD"))

		assert.ErrorIs(t, err, entitlement.ErrInvalidPlan)
	})

	t.Run("set limit validates input", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		assert.ErrorIs(t, f.svc.SetLimit(ctx, entitlement.PlanFree, entitlement.FeatureCardsCreated, -2, true), entitlement.ErrInvalidLimit)
		assert.ErrorIs(t, f.svc.SetLimit(ctx, entitlement.PlanFree, entitlement.Feature("X"), 1, true), entitlement.ErrInvalidFeature)
		assert.ErrorIs(t, f.svc.SetLimit(ctx, entitlement.PlanLegacyPro, entitlement.FeatureCardsCreated, 1, true), entitlement.ErrInvalidPlan)
	})

	t.Run("set limit edits in place", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})

		require.NoError(t, f.svc.SetLimit(ctx, entitlement.PlanFree, entitlement.FeatureAIGenerations, 8, true))
		limit, err := f.svc.GetLimit(ctx, entitlement.PlanFree, entitlement.FeatureAIGenerations)
		require.NoError(t, err)
		assert.Equal(t, int64(8), limit)

		var rows int64
		require.NoError(t, f.db.Model(&models.FeatureLimit{}).
			Where("plan = ? AND feature = ?", "FREE", "AI_GENERATIONS").Count(&rows).Error)
		assert.Equal(t, int64(1), rows)
	})

	t.Run("reseeding restores catalog values", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, entitlement.Options{})
		require.NoError(t, f.svc.SetLimit(ctx, entitlement.PlanFree, entitlement.FeatureAIGenerations, 0, false))

		require.NoError(t, f.svc.SeedLimits(ctx, entitlement.DefaultCatalog()))

		limit, err := f.svc.GetLimit(ctx, entitlement.PlanFree, entitlement.FeatureAIGenerations)
		require.NoError(t, err)
		assert.Equal(t, int64(5), limit)

		var total int64
		require.NoError(t, f.db.Model(&models.FeatureLimit{}).Count(&total).Error)
		assert.Equal(t, int64(entitlement.DefaultCatalog().Size()), total)
	})
}

func TestService_ComparePlans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, entitlement.Options{})

	up, err := f.svc.ComparePlans(ctx, entitlement.PlanFree, entitlement.PlanStudentPro)
	require.NoError(t, err)
	assert.Len(t, up.Increased, 6)
	assert.Empty(t, up.Decreased)
	assert.False(t, up.IsDowngrade())

	down, err := f.svc.ComparePlans(ctx, entitlement.PlanStudentPro, entitlement.PlanStudent)
	require.NoError(t, err)
	assert.Len(t, down.Decreased, 6)
	assert.True(t, down.IsDowngrade())
	assert.Contains(t, down.Decreased, entitlement.LimitChange{
		Feature: entitlement.FeatureCardsCreated,
		From:    entitlement.Unlimited,
		To:      1000,
	})

	_, err = f.svc.ComparePlans(ctx, entitlement.PlanFree, entitlement.Plan("GOLD"))
	assert.ErrorIs(t, err, entitlement.ErrInvalidPlan)
}

func TestService_ComparePlans_MissingRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name      string
		policy    entitlement.UnseededPolicy
		drop      entitlement.Plan
		feature   entitlement.Feature
		removed   bool
		downgrade bool
	}{
		{"row lost on target fails open", entitlement.AllowUnseeded, entitlement.PlanStudent, entitlement.FeatureAIGenerations, true, false},
		{"row lost on target is denied", entitlement.DenyUnseeded, entitlement.PlanStudent, entitlement.FeatureAIGenerations, true, true},
		{"row gained on target caps a fail-open feature", entitlement.AllowUnseeded, entitlement.PlanFree, entitlement.FeatureDataExports, false, true},
		{"row gained on target lifts a denied feature", entitlement.DenyUnseeded, entitlement.PlanFree, entitlement.FeatureDataExports, false, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, entitlement.Options{Unseeded: tt.policy})
			limit, err := f.svc.GetLimit(ctx, tt.drop, tt.feature)
			require.NoError(t, err)
			require.NoError(t, f.svc.SetLimit(ctx, tt.drop, tt.feature, limit, false))

			cmp, err := f.svc.ComparePlans(ctx, entitlement.PlanFree, entitlement.PlanStudent)

			require.NoError(t, err)
			if tt.removed {
				require.Len(t, cmp.Removed, 1)
				assert.Equal(t, tt.feature, cmp.Removed[0].Feature)
			} else {
				require.Len(t, cmp.Added, 1)
				assert.Equal(t, tt.feature, cmp.Added[0].Feature)
			}
			assert.Empty(t, cmp.Decreased)
			assert.Equal(t, tt.downgrade, cmp.IsDowngrade())
		})
	}
}
