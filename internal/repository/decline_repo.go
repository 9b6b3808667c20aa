package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/vlvt-app/spark/internal/db"
)

// DeclineRepository is the decline ledger: bounded, cross-session decline
// memory per unordered user pair.
//
// The dual nature of a decline is split across two stores. Hiding a declined
// candidate for the remainder of the current session is a Redis set that
// expires with the session; only the existence of a ledger row here controls
// whether the pair can meet again in a future session.
type DeclineRepository struct {
	db *gorm.DB
}

// NewDeclineRepository creates a new repository bound to the given DB
// connection.
func NewDeclineRepository(database *gorm.DB) *DeclineRepository {
	return &DeclineRepository{db: database}
}

func orderPair(a, b uint64) (uint64, uint64) {
	if a > b {
		return b, a
	}
	return a, b
}

// Record upserts the pair's decline record and returns the resulting count.
//
// Behavior:
//   - first decline of the pair → row created with count 1
//   - repeat decline in a *different* session → count incremented
//   - repeat decline in the same session → no-op (block racing a plain
//     decline must not burn a strike)
//   - count reaching threshold → row deleted, pair re-enters each other's
//     pool; the returned count still reports the threshold value
func (r *DeclineRepository) Record(ctx context.Context, userA, userB, sessionID uint64, threshold int) (int, error) {
	lo, hi := orderPair(userA, userB)

	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec db.DeclineRecord
		err := tx.Where("user_lo = ? AND user_hi = ?", lo, hi).First(&rec).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = db.DeclineRecord{
				UserLo:          lo,
				UserHi:          hi,
				Count:           1,
				FirstDeclinedAt: time.Now().UTC(),
				LastSessionID:   sessionID,
			}
			count = 1
			return tx.Create(&rec).Error

		case err != nil:
			return err
		}

		if rec.LastSessionID == sessionID {
			count = rec.Count
			return nil
		}

		rec.Count++
		rec.LastSessionID = sessionID
		count = rec.Count

		if rec.Count >= threshold {
			return tx.Where("user_lo = ? AND user_hi = ?", lo, hi).
				Delete(&db.DeclineRecord{}).Error
		}

		return tx.Model(&db.DeclineRecord{}).
			Where("user_lo = ? AND user_hi = ?", lo, hi).
			Updates(map[string]interface{}{
				"count":           rec.Count,
				"last_session_id": rec.LastSessionID,
			}).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// IsDeclined reports whether a non-expired decline record exists for the
// pair, in either order. Consumed by the matcher's candidate filter.
//
// A record older than the expiry window (measured from the last decline) no
// longer excludes: without the time bound, a single decline would keep the
// pair apart forever and the threshold reset at Record could never be
// reached through real traffic.
func (r *DeclineRepository) IsDeclined(ctx context.Context, userA, userB uint64, now time.Time, expiry time.Duration) (bool, error) {
	lo, hi := orderPair(userA, userB)
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.DeclineRecord{}).
		Where("user_lo = ? AND user_hi = ?", lo, hi).
		Where("updated_at > ?", now.Add(-expiry)).
		Count(&count).Error
	return count > 0, err
}
