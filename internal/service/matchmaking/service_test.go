package matchmaking_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vlvt-app/spark/internal/app"
	"github.com/vlvt-app/spark/internal/cache"
	"github.com/vlvt-app/spark/internal/config"
	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/event"
	"github.com/vlvt-app/spark/internal/service/matchmaking"
)

// setupAppCtx spins up an isolated in-memory SQLite DB plus miniredis and
// wires them into an AppContext with a no-op publisher and silent logger.
func setupAppCtx(t *testing.T) *app.AppContext {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(dbase))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()

	redisCache := cache.NewRedisCache(cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return app.New(dbase, redisCache, event.Nop{}, logger, cfg)
}

// seedUser inserts a user plus preference. Users decide who they seek and
// within what radius.
func seedUser(t *testing.T, gdb *gorm.DB, id uint64, gender string, age int, wants string, maxDistKm float64) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, gdb.Create(&db.User{
		ID:           id,
		Username:     fmt.Sprintf("user%d", id),
		Email:        fmt.Sprintf("u%d@test.com", id),
		PasswordHash: "x",
		Gender:       gender,
		Active:       true,
		BirthDate:    now.AddDate(-age, 0, -1),
	}).Error)
	require.NoError(t, gdb.Create(&db.Preference{
		UserID:        id,
		Genders:       wants,
		MinAge:        18,
		MaxAge:        99,
		MaxDistanceKm: maxDistKm,
	}).Error)
}

// seedSession inserts an active session with fuzzed == exact coordinates for
// deterministic distance assertions.
func seedSession(t *testing.T, gdb *gorm.DB, userID uint64, lat, lng float64) *db.Session {
	t.Helper()
	now := time.Now().UTC()
	s := &db.Session{
		UserID:    userID,
		Lat:       lat,
		Lng:       lng,
		FuzzedLat: lat,
		FuzzedLng: lng,
		StartedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, gdb.Create(s).Error)
	return s
}

func TestFindAndCreatePairing_PairsNearestCandidate(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	seedUser(t, appCtx.DB, 2, "female", 28, "male", 25)
	seedUser(t, appCtx.DB, 3, "female", 28, "male", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 2, 51.5050, -0.1300) // ~0.55 km
	seedSession(t, appCtx.DB, 3, 51.5300, -0.1300) // ~3.3 km

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint64(1), p.UserA)
	assert.Equal(t, uint64(2), p.UserB)
}

func TestFindAndCreatePairing_TieBreaksOnLowestUserID(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	seedUser(t, appCtx.DB, 5, "female", 28, "male", 25)
	seedUser(t, appCtx.DB, 3, "female", 28, "male", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 5, 51.5050, -0.1300)
	seedSession(t, appCtx.DB, 3, 51.5050, -0.1300) // identical position

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint64(3), p.UserB)
}

func TestFindAndCreatePairing_NoCandidateIsNotAnError(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	s1 := seedSession(t, appCtx.DB, 1, 51.5, -0.13)

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFindAndCreatePairing_RespectsMaxDistance(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 2) // 2 km radius
	seedUser(t, appCtx.DB, 2, "female", 28, "male", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 2, 51.5300, -0.1300) // ~3.3 km away

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFindAndCreatePairing_RequiresMutualGender(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	// Candidate seeks women; requester is male, so no match either way.
	seedUser(t, appCtx.DB, 2, "female", 28, "female", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 2, 51.5010, -0.1300)

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFindAndCreatePairing_RequiresAgeBothDirections(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 55, "female", 25)
	seedUser(t, appCtx.DB, 2, "female", 28, "male", 25)
	// Candidate accepts only up to 40; the 55-year-old requester falls out.
	require.NoError(t, appCtx.DB.Model(&db.Preference{}).
		Where("user_id = ?", 2).Update("max_age", 40).Error)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 2, 51.5010, -0.1300)

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFindAndCreatePairing_SkipsDeclinedPair(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	seedUser(t, appCtx.DB, 2, "female", 28, "male", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 2, 51.5010, -0.1300)

	require.NoError(t, appCtx.DB.Create(&db.DeclineRecord{
		UserLo: 1, UserHi: 2, Count: 1,
		FirstDeclinedAt: time.Now().UTC(), LastSessionID: 99,
	}).Error)

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFindAndCreatePairing_ExpiredDeclineDoesNotExclude(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	seedUser(t, appCtx.DB, 2, "female", 28, "male", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 2, 51.5010, -0.1300)

	// A year-old single decline is long past the expiry window; the pair
	// must be mutually visible again.
	yearAgo := time.Now().UTC().AddDate(-1, 0, 0)
	require.NoError(t, appCtx.DB.Create(&db.DeclineRecord{
		UserLo: 1, UserHi: 2, Count: 1,
		FirstDeclinedAt: yearAgo, LastSessionID: 99,
	}).Error)
	require.NoError(t, appCtx.DB.Model(&db.DeclineRecord{}).
		Where("user_lo = ? AND user_hi = ?", 1, 2).
		UpdateColumn("updated_at", yearAgo).Error)

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint64(2), p.UserB)
}

func TestFindAndCreatePairing_SkipsBlockedEitherDirection(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	seedUser(t, appCtx.DB, 2, "female", 28, "male", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 2, 51.5010, -0.1300)

	// Block points target→actor, opposite of the requester's direction.
	require.NoError(t, appCtx.DB.Create(&db.Block{ActorID: 2, TargetID: 1}).Error)

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFindAndCreatePairing_SkipsSessionHiddenCandidates(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	seedUser(t, appCtx.DB, 2, "female", 28, "male", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 2, 51.5010, -0.1300)

	require.NoError(t, appCtx.RedisCache.HideCandidate(ctx, s1.ID, 2, s1.ExpiresAt))

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFindAndCreatePairing_SkipsTakenCandidates(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	seedUser(t, appCtx.DB, 2, "female", 28, "male", 25)
	seedUser(t, appCtx.DB, 3, "female", 28, "male", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	seedSession(t, appCtx.DB, 2, 51.5010, -0.1300) // nearest but taken
	seedSession(t, appCtx.DB, 3, 51.5100, -0.1300)

	now := time.Now().UTC()
	require.NoError(t, appCtx.DB.Create(&db.Pairing{
		SessionID: 99, UserA: 2, UserB: 50,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}).Error)

	p, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint64(3), p.UserB)
}

func TestFindAndCreatePairing_NoDuplicateForAlreadyPairedRequester(t *testing.T) {
	ctx := context.Background()
	appCtx := setupAppCtx(t)
	svc := matchmaking.New(appCtx)

	seedUser(t, appCtx.DB, 1, "male", 30, "female", 25)
	seedUser(t, appCtx.DB, 2, "female", 28, "male", 25)

	s1 := seedSession(t, appCtx.DB, 1, 51.5000, -0.1300)
	s2 := seedSession(t, appCtx.DB, 2, 51.5010, -0.1300)

	p1, err := svc.FindAndCreatePairing(ctx, s1.ID)
	require.NoError(t, err)
	require.NotNil(t, p1)

	// The redundant sweep path fires for the partner's session too: the
	// invariant holds, no second pairing appears.
	p2, err := svc.FindAndCreatePairing(ctx, s2.ID)
	require.NoError(t, err)
	assert.Nil(t, p2)

	var count int64
	require.NoError(t, appCtx.DB.Model(&db.Pairing{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
