package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/repository"
)

func startSession(t *testing.T, repo *repository.SessionRepository, userID uint64) *db.Session {
	t.Helper()
	now := time.Now().UTC()
	s := &db.Session{
		UserID:    userID,
		Lat:       51.5,
		Lng:       -0.13,
		FuzzedLat: 51.501,
		FuzzedLng: -0.131,
		StartedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func TestActiveByUser_IgnoresEndedSessions(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSessionRepository(setupTestDB(t))
	now := time.Now().UTC()

	s := startSession(t, repo, 1)

	got, err := repo.ActiveByUser(ctx, 1, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.ID, got.ID)

	require.NoError(t, repo.End(ctx, s.ID, now))

	got, err = repo.ActiveByUser(ctx, 1, now)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestActiveSessionIDsWithoutPairing(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	sessions := repository.NewSessionRepository(dbase)
	pairings := repository.NewPairingRepository(dbase)
	now := time.Now().UTC()

	s1 := startSession(t, sessions, 1)
	s2 := startSession(t, sessions, 2)
	s3 := startSession(t, sessions, 3)

	newPairing(t, pairings, 1, 2)

	ids, err := sessions.ActiveSessionIDsWithoutPairing(ctx, now)
	require.NoError(t, err)
	assert.NotContains(t, ids, s1.ID)
	assert.NotContains(t, ids, s2.ID)
	assert.Contains(t, ids, s3.ID)
}

func TestLockActive_ReturnsNilForEndedSession(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewSessionRepository(dbase)
	now := time.Now().UTC()

	s := startSession(t, repo, 1)
	require.NoError(t, repo.End(ctx, s.ID, now))

	locked, err := repo.LockActive(ctx, dbase, s.ID, now)
	require.NoError(t, err)
	assert.Nil(t, locked)
}
