// Package safety implements the match-scoped block and report actions.
// Blocks land in the durable account-level ledger consulted by the matcher;
// a report always implies a block, never the reverse.
package safety

import (
	"context"
	"time"

	"github.com/vlvt-app/spark/internal/app"
	"github.com/vlvt-app/spark/internal/apperrors"
	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/repository"
)

// ValidReportReasons is the fixed enumerated set accepted by Report.
var ValidReportReasons = map[string]bool{
	"harassment":    true,
	"inappropriate": true,
	"spam":          true,
	"safety":        true,
	"other":         true,
}

// Declining is the slice of the pairing service the gate needs: the guarded,
// ledger-free force decline.
type Declining interface {
	ForceDecline(ctx context.Context, pairingID, declinerID uint64) error
}

// Service implements the safety gate.
type Service struct {
	appCtx   *app.AppContext
	decliner Declining
	safety   *repository.SafetyRepository
	pairings *repository.PairingRepository
}

// New creates the safety gate with dependencies from AppContext.
func New(appCtx *app.AppContext, decliner Declining) *Service {
	return &Service{
		appCtx:   appCtx,
		decliner: decliner,
		safety:   repository.NewSafetyRepository(appCtx.DB),
		pairings: repository.NewPairingRepository(appCtx.DB),
	}
}

// Block inserts a durable block of the pairing partner. Idempotent: an
// existing row short-circuits the insert. Regardless of outcome, the pairing
// is guardedly declined fire-and-forget; failure to decline never fails the
// block.
func (s *Service) Block(ctx context.Context, actorID, pairingID uint64) error {
	p, err := s.pairings.ByID(ctx, pairingID)
	if err != nil {
		return err
	}
	if !p.HasUser(actorID) {
		return apperrors.Forbidden("not a participant of this pairing")
	}
	targetID := p.OtherUser(actorID)

	exists, err := s.safety.BlockExists(ctx, actorID, targetID)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.safety.CreateBlock(ctx, &db.Block{
			ActorID:   actorID,
			TargetID:  targetID,
			PairingID: pairingID,
		}); err != nil {
			return err
		}
		s.appCtx.Logger.Info("user blocked", "actor", actorID, "target", targetID, "pairing_id", pairingID)
	}

	if err := s.decliner.ForceDecline(ctx, pairingID, actorID); err != nil {
		s.appCtx.Logger.Error("post-block decline failed", "pairing_id", pairingID, "err", err)
	}

	return nil
}

// Report files a safety report tagged with its originating pairing, then
// blocks the target through the same path as Block.
func (s *Service) Report(ctx context.Context, actorID, pairingID uint64, reason, details string) error {
	if !ValidReportReasons[reason] {
		return apperrors.Invalid("invalid report reason")
	}

	p, err := s.pairings.ByID(ctx, pairingID)
	if err != nil {
		return err
	}
	if !p.HasUser(actorID) {
		return apperrors.Forbidden("not a participant of this pairing")
	}
	targetID := p.OtherUser(actorID)

	rep := db.Report{
		ActorID:   actorID,
		TargetID:  targetID,
		PairingID: pairingID,
		Reason:    reason,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.safety.CreateReport(ctx, &rep); err != nil {
		return err
	}
	s.appCtx.Logger.Info("user reported", "actor", actorID, "target", targetID, "reason", reason)

	return s.Block(ctx, actorID, pairingID)
}
