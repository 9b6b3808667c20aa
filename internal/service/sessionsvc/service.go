// Package sessionsvc manages the time-boxed activation window: session
// start/end and the nearby-session count.
package sessionsvc

import (
	"context"
	"time"

	"github.com/vlvt-app/spark/internal/app"
	"github.com/vlvt-app/spark/internal/apperrors"
	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/geo"
	"github.com/vlvt-app/spark/internal/repository"
)

// Starter is the slice of the scheduler this service needs: the deferred
// first matching attempt on start, and the timer/rematch bookkeeping when a
// session end takes its pairing down with it.
type Starter interface {
	OnSessionStart(sessionID uint64)
	OnPairingResolved(pairingID uint64)
	ScheduleRematchForUsers(userIDs []uint64, after time.Duration)
}

// Service implements session activation and the nearby count.
type Service struct {
	appCtx   *app.AppContext
	starter  Starter
	sessions *repository.SessionRepository
	pairings *repository.PairingRepository
	profiles *repository.ProfileRepository
}

// New creates the session service with dependencies from AppContext.
func New(appCtx *app.AppContext, starter Starter) *Service {
	return &Service{
		appCtx:   appCtx,
		starter:  starter,
		sessions: repository.NewSessionRepository(appCtx.DB),
		pairings: repository.NewPairingRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
	}
}

// SessionView is the caller-facing session. Only fuzzed coordinates leave
// the service.
type SessionView struct {
	ID        uint64    `json:"id"`
	FuzzedLat float64   `json:"fuzzed_lat"`
	FuzzedLng float64   `json:"fuzzed_lng"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func view(s *db.Session) *SessionView {
	return &SessionView{
		ID:        s.ID,
		FuzzedLat: s.FuzzedLat,
		FuzzedLng: s.FuzzedLng,
		StartedAt: s.StartedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

// Start activates a session at the given exact position. The exact
// coordinates are stored privately and a fuzzed pair is fixed once, at
// start. An existing active session is returned as-is: at most one active
// session per user.
func (s *Service) Start(ctx context.Context, userID uint64, lat, lng float64) (*SessionView, bool, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, false, apperrors.Invalid("coordinates out of range")
	}

	now := time.Now().UTC()
	existing, err := s.sessions.ActiveByUser(ctx, userID, now)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return view(existing), false, nil
	}

	fLat, fLng := geo.Fuzz(lat, lng)
	ses := &db.Session{
		UserID:    userID,
		Lat:       lat,
		Lng:       lng,
		FuzzedLat: fLat,
		FuzzedLng: fLng,
		StartedAt: now,
		ExpiresAt: now.Add(s.appCtx.Cfg.Match.SessionTTL),
	}
	if err := s.sessions.Create(ctx, ses); err != nil {
		return nil, false, err
	}

	s.appCtx.Logger.Info("session started", "session_id", ses.ID, "user_id", userID)
	s.starter.OnSessionStart(ses.ID)

	return view(ses), true, nil
}

// End closes the caller's active session. An unresolved pairing is discarded
// with it: session end without save declines the pairing, which also drops
// its ephemeral messages, and the partner re-enters the pool after the short
// cooldown. The decline ledger is not touched; walking away from a session
// is not a strike against the pair.
func (s *Service) End(ctx context.Context, userID uint64) error {
	now := time.Now().UTC()
	ses, err := s.sessions.ActiveByUser(ctx, userID, now)
	if err != nil {
		return err
	}
	if ses == nil {
		return apperrors.ErrNotFound
	}

	if p, err := s.pairings.ActiveByUser(ctx, userID, now); err == nil && p != nil {
		won, _, derr := s.pairings.GuardedDecline(ctx, p.ID, userID, now)
		if derr != nil {
			s.appCtx.Logger.Error("failed to discard pairing on session end", "pairing_id", p.ID, "err", derr)
		} else if won {
			s.starter.OnPairingResolved(p.ID)
			s.starter.ScheduleRematchForUsers([]uint64{p.OtherUser(userID)}, s.appCtx.Cfg.Match.AutoDeclineCooldown)
		}
	}

	return s.sessions.End(ctx, ses.ID, now)
}

// NearbyCount returns how many other active sessions sit within the caller's
// max-distance preference. Cache-first with a short TTL; on a miss the count
// is computed from fuzzed coordinates and written back.
func (s *Service) NearbyCount(ctx context.Context, userID uint64) (int64, error) {
	now := time.Now().UTC()

	ses, err := s.sessions.ActiveByUser(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	if ses == nil {
		return 0, apperrors.ErrNotFound
	}

	if s.appCtx.RedisCache != nil {
		if n, ok, err := s.appCtx.RedisCache.GetNearbyCount(ctx, userID); err == nil && ok {
			return n, nil
		}
	}

	pref, err := s.profiles.PreferenceByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	others, err := s.sessions.ActiveSessions(ctx, userID, now)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, o := range others {
		if geo.DistanceKm(ses.FuzzedLat, ses.FuzzedLng, o.FuzzedLat, o.FuzzedLng) <= pref.MaxDistanceKm {
			count++
		}
	}

	if s.appCtx.RedisCache != nil {
		if err := s.appCtx.RedisCache.SetNearbyCount(ctx, userID, count); err != nil {
			s.appCtx.Logger.Warn("nearby count cache write failed", "user_id", userID, "err", err)
		}
	}

	return count, nil
}
