package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/repository"
)

const declineExpiry = 30 * 24 * time.Hour

// setup in-memory DB
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func TestRecordDecline_FirstDeclineStartsAtOne(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewDeclineRepository(setupTestDB(t))

	count, err := repo.Record(ctx, 2, 1, 100, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	declined, err := repo.IsDeclined(ctx, 1, 2, time.Now().UTC(), declineExpiry)
	require.NoError(t, err)
	assert.True(t, declined)
}

func TestRecordDecline_SameSessionDoesNotIncrement(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewDeclineRepository(setupTestDB(t))

	_, err := repo.Record(ctx, 1, 2, 100, 3)
	require.NoError(t, err)

	// A block racing a plain decline replays the same session id.
	count, err := repo.Record(ctx, 1, 2, 100, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordDecline_IncrementsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewDeclineRepository(setupTestDB(t))

	_, err := repo.Record(ctx, 1, 2, 100, 3)
	require.NoError(t, err)

	count, err := repo.Record(ctx, 2, 1, 200, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	declined, err := repo.IsDeclined(ctx, 2, 1, time.Now().UTC(), declineExpiry)
	require.NoError(t, err)
	assert.True(t, declined)
}

func TestRecordDecline_ThresholdDeletesRecord(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewDeclineRepository(dbase)

	// Three declines across three distinct sessions.
	_, err := repo.Record(ctx, 1, 2, 100, 3)
	require.NoError(t, err)
	_, err = repo.Record(ctx, 1, 2, 200, 3)
	require.NoError(t, err)
	count, err := repo.Record(ctx, 1, 2, 300, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Decline memory reset: the pair is eligible again.
	declined, err := repo.IsDeclined(ctx, 1, 2, time.Now().UTC(), declineExpiry)
	require.NoError(t, err)
	assert.False(t, declined)

	var rows int64
	require.NoError(t, dbase.Model(&db.DeclineRecord{}).Count(&rows).Error)
	assert.Equal(t, int64(0), rows)
}

func TestIsDeclined_OrderIndependent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewDeclineRepository(setupTestDB(t))
	now := time.Now().UTC()

	_, err := repo.Record(ctx, 9, 4, 100, 3)
	require.NoError(t, err)

	a, err := repo.IsDeclined(ctx, 4, 9, now, declineExpiry)
	require.NoError(t, err)
	b, err := repo.IsDeclined(ctx, 9, 4, now, declineExpiry)
	require.NoError(t, err)
	assert.True(t, a)
	assert.True(t, b)
}

func TestIsDeclined_ExpiredRecordDoesNotExclude(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewDeclineRepository(dbase)
	now := time.Now().UTC()

	_, err := repo.Record(ctx, 1, 2, 100, 3)
	require.NoError(t, err)

	// Age the record past the expiry window. UpdateColumn bypasses the
	// automatic updated_at refresh.
	require.NoError(t, dbase.Model(&db.DeclineRecord{}).
		Where("user_lo = ? AND user_hi = ?", 1, 2).
		UpdateColumn("updated_at", now.AddDate(-1, 0, 0)).Error)

	declined, err := repo.IsDeclined(ctx, 1, 2, now, declineExpiry)
	require.NoError(t, err)
	assert.False(t, declined)

	// A fresh decline of the same pair re-arms the exclusion.
	_, err = repo.Record(ctx, 1, 2, 200, 3)
	require.NoError(t, err)

	declined, err = repo.IsDeclined(ctx, 1, 2, now, declineExpiry)
	require.NoError(t, err)
	assert.True(t, declined)
}
