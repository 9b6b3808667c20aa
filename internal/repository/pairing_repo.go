package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vlvt-app/spark/internal/db"
)

// PairingRepository provides data access for ephemeral pairings. Every
// invariant-bearing transition goes through a lock-then-recheck transaction:
// read current state under the lock, proceed only if the precondition still
// holds, write, commit. That collapses every race (two declines, a decline
// racing the auto-resolution timer, two saves) into a single winner.
type PairingRepository struct {
	db *gorm.DB
}

// NewPairingRepository creates a new repository bound to the given DB
// connection (or transaction).
func NewPairingRepository(database *gorm.DB) *PairingRepository {
	return &PairingRepository{db: database}
}

// Create inserts a pairing row. UserA/UserB are stored in ascending order.
func (r *PairingRepository) Create(ctx context.Context, p *db.Pairing) error {
	if p.UserA > p.UserB {
		p.UserA, p.UserB = p.UserB, p.UserA
	}
	return r.db.WithContext(ctx).Create(p).Error
}

// ByID fetches a pairing by primary key.
func (r *PairingRepository) ByID(ctx context.Context, id uint64) (*db.Pairing, error) {
	var p db.Pairing
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ActiveByUser returns the user's active pairing, or nil when there is none.
func (r *PairingRepository) ActiveByUser(ctx context.Context, userID uint64, now time.Time) (*db.Pairing, error) {
	var p db.Pairing
	err := r.db.WithContext(ctx).
		Where("(user_a = ? OR user_b = ?)", userID, userID).
		Where("decliner_id IS NULL AND converted_match_id IS NULL AND expires_at > ?", now).
		Order("id DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AnyActiveForUsers reports whether either user is currently in an active
// pairing. This is the recheck run immediately before insert, inside the
// creation transaction, as defense against a concurrent invocation slipping
// in between candidate selection and insert.
func (r *PairingRepository) AnyActiveForUsers(ctx context.Context, userA, userB uint64, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Pairing{}).
		Where("(user_a IN (?, ?) OR user_b IN (?, ?))", userA, userB, userA, userB).
		Where("decliner_id IS NULL AND converted_match_id IS NULL AND expires_at > ?", now).
		Count(&count).Error
	return count > 0, err
}

// UsersWithActivePairing returns the set of user ids currently in an active
// pairing. The matcher uses it to drop taken candidates in one query instead
// of probing per candidate.
func (r *PairingRepository) UsersWithActivePairing(ctx context.Context, now time.Time) (map[uint64]struct{}, error) {
	var pairings []db.Pairing
	err := r.db.WithContext(ctx).
		Select("user_a", "user_b").
		Where("decliner_id IS NULL AND converted_match_id IS NULL AND expires_at > ?", now).
		Find(&pairings).Error
	if err != nil {
		return nil, err
	}
	taken := make(map[uint64]struct{}, len(pairings)*2)
	for _, p := range pairings {
		taken[p.UserA] = struct{}{}
		taken[p.UserB] = struct{}{}
	}
	return taken, nil
}

// LockByID locks the pairing row for the remainder of the transaction.
func (r *PairingRepository) LockByID(ctx context.Context, id uint64) (*db.Pairing, error) {
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p db.Pairing
	if err := q.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GuardedDecline resolves the pairing as declined by declinerID only if it is
// still unresolved. Returns (true, pairing) when this call won the
// transition, (false, pairing) when someone resolved it first. The pairing's
// ephemeral messages are discarded in the same transaction; a declined
// pairing is never converted, so nothing is kept.
//
// The guard is what makes a late-firing auto-resolution timer a no-op:
// cancellation of the timer is best-effort only.
func (r *PairingRepository) GuardedDecline(ctx context.Context, pairingID, declinerID uint64, at time.Time) (bool, *db.Pairing, error) {
	var won bool
	var locked *db.Pairing

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := NewPairingRepository(tx)

		p, err := txRepo.LockByID(ctx, pairingID)
		if err != nil {
			return err
		}
		locked = p

		if p.DeclinerID != nil || p.ConvertedMatchID != nil {
			return nil // already resolved, not an error
		}

		if err := tx.Model(p).Updates(map[string]interface{}{
			"decliner_id": declinerID,
			"declined_at": at,
		}).Error; err != nil {
			return err
		}

		if err := tx.Where("pairing_id = ?", pairingID).
			Delete(&db.EphemeralMessage{}).Error; err != nil {
			return err
		}

		won = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return won, locked, nil
}
