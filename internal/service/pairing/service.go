// Package pairing owns the lifecycle of an ephemeral pairing after creation:
// the current-match view, declines, the ephemeral message store, and the
// mutual-consent conversion into a permanent match.
package pairing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vlvt-app/spark/internal/app"
	"github.com/vlvt-app/spark/internal/apperrors"
	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/event"
	"github.com/vlvt-app/spark/internal/geo"
	"github.com/vlvt-app/spark/internal/repository"
)

// Resolver is the slice of the scheduler this service needs: disarming the
// auto-resolution timer and re-entering users into the pool.
type Resolver interface {
	OnPairingResolved(pairingID uint64)
	ScheduleRematchForUsers(userIDs []uint64, after time.Duration)
}

// Service implements declines, saves and message access for pairings.
type Service struct {
	appCtx   *app.AppContext
	resolver Resolver
	pairings *repository.PairingRepository
	sessions *repository.SessionRepository
	declines *repository.DeclineRepository
	messages *repository.MessageRepository
	profiles *repository.ProfileRepository
}

// New creates the pairing service with dependencies from AppContext.
func New(appCtx *app.AppContext, resolver Resolver) *Service {
	return &Service{
		appCtx:   appCtx,
		resolver: resolver,
		pairings: repository.NewPairingRepository(appCtx.DB),
		sessions: repository.NewSessionRepository(appCtx.DB),
		declines: repository.NewDeclineRepository(appCtx.DB),
		messages: repository.NewMessageRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
	}
}

// CurrentMatch is the caller-facing view of an active pairing.
type CurrentMatch struct {
	PairingID  uint64    `json:"pairing_id"`
	PartnerID  uint64    `json:"partner_id"`
	Partner    string    `json:"partner_username"`
	Gender     string    `json:"partner_gender"`
	Age        int       `json:"partner_age"`
	DistanceKm float64   `json:"distance_km"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	YouSaved   bool      `json:"you_saved"`
}

// Current returns the caller's active pairing with the partner's public
// profile and fuzzed distance, or nil when the caller is still searching.
func (s *Service) Current(ctx context.Context, userID uint64) (*CurrentMatch, error) {
	now := time.Now().UTC()

	p, err := s.pairings.ActiveByUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	partnerID := p.OtherUser(userID)
	partner, err := s.profiles.UserByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	// Distance is computed on fuzzed coordinates only; exact positions stay
	// private. A partner whose session just ended keeps the last distance of 0.
	var dist float64
	mySes, err := s.sessions.ActiveByUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	partnerSes, err := s.sessions.ActiveByUser(ctx, partnerID, now)
	if err != nil {
		return nil, err
	}
	if mySes != nil && partnerSes != nil {
		dist = geo.DistanceKm(mySes.FuzzedLat, mySes.FuzzedLng, partnerSes.FuzzedLat, partnerSes.FuzzedLng)
	}

	return &CurrentMatch{
		PairingID:  p.ID,
		PartnerID:  partnerID,
		Partner:    partner.Username,
		Gender:     partner.Gender,
		Age:        partner.Age(now),
		DistanceKm: dist,
		CreatedAt:  p.CreatedAt,
		ExpiresAt:  p.ExpiresAt,
		YouSaved:   p.SaveOf(userID),
	}, nil
}

// Decline resolves the caller's current pairing, records the decline in the
// cross-session ledger, hides the partner for the rest of the caller's
// session, and re-enters both users after the manual cooldown.
func (s *Service) Decline(ctx context.Context, userID uint64) error {
	now := time.Now().UTC()

	p, err := s.pairings.ActiveByUser(ctx, userID, now)
	if err != nil {
		return err
	}
	if p == nil {
		return apperrors.ErrNotFound
	}

	won, _, err := s.pairings.GuardedDecline(ctx, p.ID, userID, now)
	if err != nil {
		return err
	}
	if !won {
		return apperrors.ErrConflict
	}

	partnerID := p.OtherUser(userID)

	count, err := s.declines.Record(ctx, userID, partnerID, p.SessionID, s.appCtx.Cfg.Match.DeclineThreshold)
	if err != nil {
		// The pairing is already resolved; the ledger catching up later is
		// preferable to un-declining. Log and continue.
		s.appCtx.Logger.Error("decline ledger update failed", "pairing_id", p.ID, "err", err)
	} else {
		s.appCtx.Logger.Info("pairing declined", "pairing_id", p.ID, "decliner", userID, "pair_decline_count", count)
	}

	s.hideForSession(ctx, userID, partnerID, now)

	s.resolver.OnPairingResolved(p.ID)
	s.resolver.ScheduleRematchForUsers([]uint64{p.UserA, p.UserB}, s.appCtx.Cfg.Match.ManualDeclineCooldown)
	return nil
}

// ForceDecline guardedly declines a specific pairing on behalf of declinerID
// without touching the decline ledger. The safety gate uses it after a block:
// the block row already excludes the pair permanently, so burning a ledger
// strike would be pointless.
func (s *Service) ForceDecline(ctx context.Context, pairingID, declinerID uint64) error {
	won, p, err := s.pairings.GuardedDecline(ctx, pairingID, declinerID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !won {
		return nil // already resolved; the block still stands
	}

	s.resolver.OnPairingResolved(p.ID)
	s.resolver.ScheduleRematchForUsers([]uint64{p.UserA, p.UserB}, s.appCtx.Cfg.Match.ManualDeclineCooldown)
	return nil
}

// hideForSession adds the partner to the caller's session-scoped hidden set.
// Matters mostly on the threshold decline, where the ledger row is deleted
// and only this set keeps the pair apart until the session ends.
func (s *Service) hideForSession(ctx context.Context, userID, partnerID uint64, now time.Time) {
	if s.appCtx.RedisCache == nil {
		return
	}
	ses, err := s.sessions.ActiveByUser(ctx, userID, now)
	if err != nil || ses == nil {
		return
	}
	if err := s.appCtx.RedisCache.HideCandidate(ctx, ses.ID, partnerID, ses.ExpiresAt); err != nil {
		s.appCtx.Logger.Warn("failed to hide candidate", "session_id", ses.ID, "err", err)
	}
}

// SaveResult is the outcome of a save vote.
type SaveResult struct {
	Converted        bool   `json:"-"`
	PermanentMatchID string `json:"permanent_match_id,omitempty"`
}

// RecordSaveVote records userID's consent to persist the pairing. Idempotent
// per user and across conversion: repeated calls after conversion return the
// existing permanent id, a repeated vote returns the current waiting state.
// When the call completes the second vote, the conversion happens atomically
// in the same transaction: permanent match created with conversion
// provenance, every ephemeral message copied in chronological order under
// fresh ids, pairing stamped with the conversion id.
func (s *Service) RecordSaveVote(ctx context.Context, pairingID, userID uint64) (*SaveResult, error) {
	now := time.Now().UTC()
	var result SaveResult

	err := s.appCtx.DB.Transaction(func(tx *gorm.DB) error {
		txPairings := repository.NewPairingRepository(tx)
		txMessages := repository.NewMessageRepository(tx)

		p, err := txPairings.LockByID(ctx, pairingID)
		if err != nil {
			return err
		}

		if !p.HasUser(userID) {
			return apperrors.Forbidden("not a participant of this pairing")
		}

		if p.ConvertedMatchID != nil {
			result = SaveResult{Converted: true, PermanentMatchID: *p.ConvertedMatchID}
			return nil
		}

		if p.DeclinerID != nil || !p.ExpiresAt.After(now) {
			return apperrors.ErrConflict
		}

		if p.SaveOf(userID) {
			return nil // duplicate vote, waiting state unchanged
		}

		voteCol := "save_a"
		otherVoted := p.SaveB
		if p.UserB == userID {
			voteCol = "save_b"
			otherVoted = p.SaveA
		}
		if err := tx.Model(p).Update(voteCol, true).Error; err != nil {
			return err
		}

		if !otherVoted {
			return nil // first vote recorded, waiting for the partner
		}

		// Both consented: convert inside this transaction.
		matchID := uuid.NewString()
		match := db.Match{
			ID:        matchID,
			UserA:     p.UserA,
			UserB:     p.UserB,
			Origin:    db.MatchOriginConversion,
			CreatedAt: now,
		}
		if err := tx.Create(&match).Error; err != nil {
			return err
		}

		ephemeral, err := txMessages.AllChronological(ctx, p.ID)
		if err != nil {
			return err
		}
		for _, m := range ephemeral {
			copied := db.Message{
				ID:        uuid.NewString(),
				MatchID:   matchID,
				SenderID:  m.SenderID,
				Body:      m.Body,
				CreatedAt: m.CreatedAt,
			}
			if err := tx.Create(&copied).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(p).Update("converted_match_id", matchID).Error; err != nil {
			return err
		}

		result = SaveResult{Converted: true, PermanentMatchID: matchID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Side effects after commit. All fire-and-forget.
	p, err := s.pairings.ByID(ctx, pairingID)
	if err == nil {
		if result.Converted {
			s.resolver.OnPairingResolved(pairingID)
			s.publish(ctx, event.Event{
				PairingID: pairingID,
				UserIDs:   []uint64{p.UserA, p.UserB},
				Type:      event.TypeMutualSaved,
				Timestamp: now,
			})
		} else {
			s.publish(ctx, event.Event{
				PairingID: pairingID,
				UserIDs:   []uint64{p.OtherUser(userID)},
				Type:      event.TypePartnerSaved,
				Timestamp: now,
			})
		}
	}

	return &result, nil
}

// Messages returns a page of the pairing's ephemeral history, newest first.
// Participants only; fail-closed.
func (s *Service) Messages(ctx context.Context, pairingID, userID uint64, before *string, limit int) ([]db.EphemeralMessage, *string, error) {
	p, err := s.pairings.ByID(ctx, pairingID)
	if err != nil {
		return nil, nil, err
	}
	if !p.HasUser(userID) {
		return nil, nil, apperrors.Forbidden("not a participant of this pairing")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.messages.ListBefore(ctx, pairingID, before, limit)
}

// SendMessage appends an ephemeral message to an active pairing.
func (s *Service) SendMessage(ctx context.Context, pairingID, userID uint64, body string) (*db.EphemeralMessage, error) {
	if body == "" || len(body) > 2000 {
		return nil, apperrors.Invalid("message body must be 1-2000 characters")
	}

	p, err := s.pairings.ByID(ctx, pairingID)
	if err != nil {
		return nil, err
	}
	if !p.HasUser(userID) {
		return nil, apperrors.Forbidden("not a participant of this pairing")
	}
	if !p.Active(time.Now().UTC()) {
		return nil, apperrors.ErrConflict
	}

	return s.messages.Append(ctx, pairingID, userID, body)
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if err := s.appCtx.Publisher.Publish(ctx, e); err != nil {
		s.appCtx.Logger.Warn("event publish failed", "type", e.Type, "pairing_id", e.PairingID, "err", err)
	}
}
