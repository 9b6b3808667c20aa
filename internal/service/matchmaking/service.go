// Package matchmaking implements the proximity matcher: given an active
// session it finds the best eligible nearby candidate and atomically creates
// a pairing, upholding the at-most-one-active-pairing-per-user invariant
// under concurrent invocations.
package matchmaking

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vlvt-app/spark/internal/app"
	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/geo"
	"github.com/vlvt-app/spark/internal/repository"
)

// Service is the proximity matcher.
type Service struct {
	appCtx   *app.AppContext
	sessions *repository.SessionRepository
	pairings *repository.PairingRepository
	declines *repository.DeclineRepository
	safety   *repository.SafetyRepository
	profiles *repository.ProfileRepository
}

// New creates a matcher with dependencies from AppContext.
func New(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		sessions: repository.NewSessionRepository(appCtx.DB),
		pairings: repository.NewPairingRepository(appCtx.DB),
		declines: repository.NewDeclineRepository(appCtx.DB),
		safety:   repository.NewSafetyRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
	}
}

type candidate struct {
	session    db.Session
	userID     uint64
	distanceKm float64
}

// FindAndCreatePairing attempts to pair the session's owner with the nearest
// eligible candidate. (nil, nil) means no candidate was found or another
// matcher invocation got there first; both are normal outcomes, not faults.
func (s *Service) FindAndCreatePairing(ctx context.Context, sessionID uint64) (*db.Pairing, error) {
	now := time.Now().UTC()

	ses, err := s.sessions.ByID(ctx, sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	if !ses.Active(now) {
		return nil, nil
	}

	// Already paired? Nothing to do.
	existing, err := s.pairings.ActiveByUser(ctx, ses.UserID, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	best, err := s.selectCandidate(ctx, ses, now)
	if err != nil || best == nil {
		return nil, err
	}

	return s.createPairing(ctx, ses, best, now)
}

// selectCandidate scans every other active session and returns the nearest
// eligible one, or nil.
func (s *Service) selectCandidate(ctx context.Context, ses *db.Session, now time.Time) (*candidate, error) {
	others, err := s.sessions.ActiveSessions(ctx, ses.UserID, now)
	if err != nil {
		return nil, err
	}
	if len(others) == 0 {
		return nil, nil
	}

	requester, err := s.profiles.UserByID(ctx, ses.UserID)
	if err != nil {
		return nil, err
	}
	reqPref, err := s.profiles.PreferenceByUser(ctx, ses.UserID)
	if err != nil {
		return nil, err
	}

	taken, err := s.pairings.UsersWithActivePairing(ctx, now)
	if err != nil {
		return nil, err
	}

	// Candidates declined earlier in this session stay hidden until it ends.
	// Redis being down degrades to them reappearing, which is a UX wart, not
	// an invariant violation, so we log and carry on.
	hidden := map[uint64]struct{}{}
	if s.appCtx.RedisCache != nil {
		hidden, err = s.appCtx.RedisCache.HiddenCandidates(ctx, ses.ID)
		if err != nil {
			s.appCtx.Logger.Warn("hidden-candidate lookup failed", "session_id", ses.ID, "err", err)
			hidden = map[uint64]struct{}{}
		}
	}

	ids := make([]uint64, 0, len(others))
	for _, o := range others {
		ids = append(ids, o.UserID)
	}
	users, err := s.profiles.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	prefs, err := s.profiles.PreferencesByUserIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var best *candidate
	for _, other := range others {
		if _, ok := taken[other.UserID]; ok {
			continue
		}
		if _, ok := hidden[other.UserID]; ok {
			continue
		}

		cand, ok := users[other.UserID]
		if !ok || !cand.Active {
			continue
		}
		candPref := prefs[other.UserID]

		dist := geo.DistanceKm(ses.FuzzedLat, ses.FuzzedLng, other.FuzzedLat, other.FuzzedLng)
		if dist > reqPref.MaxDistanceKm {
			continue
		}
		if !mutuallyCompatible(requester, reqPref, &cand, &candPref, now) {
			continue
		}

		declined, err := s.declines.IsDeclined(ctx, ses.UserID, other.UserID, now, s.appCtx.Cfg.Match.DeclineExpiry)
		if err != nil {
			return nil, err
		}
		if declined {
			continue
		}

		blocked, err := s.safety.IsBlockedEither(ctx, ses.UserID, other.UserID)
		if err != nil {
			return nil, err
		}
		if blocked {
			continue
		}

		if best == nil ||
			dist < best.distanceKm ||
			(dist == best.distanceKm && other.UserID < best.userID) {
			c := candidate{session: other, userID: other.UserID, distanceKm: dist}
			best = &c
		}
	}
	return best, nil
}

// createPairing claims the candidate's session row, re-checks the invariant
// and inserts the pairing, all in one transaction. A failed claim or recheck
// means another invocation matched first; the attempt is abandoned quietly.
func (s *Service) createPairing(ctx context.Context, ses *db.Session, best *candidate, now time.Time) (*db.Pairing, error) {
	var created *db.Pairing

	err := s.appCtx.DB.Transaction(func(tx *gorm.DB) error {
		txSessions := repository.NewSessionRepository(tx)
		txPairings := repository.NewPairingRepository(tx)

		locked, err := txSessions.LockActive(ctx, tx, best.session.ID, now)
		if err != nil {
			return err
		}
		if locked == nil {
			return nil // claimed by a concurrent matcher, or no longer active
		}

		busy, err := txPairings.AnyActiveForUsers(ctx, ses.UserID, best.userID, now)
		if err != nil {
			return err
		}
		if busy {
			return nil // someone else matched first
		}

		expires := ses.ExpiresAt
		if locked.ExpiresAt.Before(expires) {
			expires = locked.ExpiresAt
		}

		p := &db.Pairing{
			SessionID: ses.ID,
			UserA:     ses.UserID,
			UserB:     best.userID,
			CreatedAt: now,
			ExpiresAt: expires,
		}
		if err := txPairings.Create(ctx, p); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created != nil {
		s.appCtx.Logger.Info("pairing created",
			"pairing_id", created.ID,
			"user_a", created.UserA,
			"user_b", created.UserB,
			"distance_km", best.distanceKm,
		)
	}
	return created, nil
}

// mutuallyCompatible checks gender and age criteria in both directions.
func mutuallyCompatible(a *db.User, aPref *db.Preference, b *db.User, bPref *db.Preference, now time.Time) bool {
	if !wantsGender(aPref.Genders, b.Gender) || !wantsGender(bPref.Genders, a.Gender) {
		return false
	}
	aAge, bAge := a.Age(now), b.Age(now)
	if bAge < aPref.MinAge || bAge > aPref.MaxAge {
		return false
	}
	if aAge < bPref.MinAge || aAge > bPref.MaxAge {
		return false
	}
	return true
}

// wantsGender reports whether the comma-set of sought genders contains g.
// An empty set means no gender restriction.
func wantsGender(set, g string) bool {
	if strings.TrimSpace(set) == "" {
		return true
	}
	for _, want := range strings.Split(set, ",") {
		if strings.EqualFold(strings.TrimSpace(want), g) {
			return true
		}
	}
	return false
}
