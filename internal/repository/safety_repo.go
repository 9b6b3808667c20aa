package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/vlvt-app/spark/internal/db"
)

// SafetyRepository provides data access for the durable block ledger and
// safety reports.
type SafetyRepository struct {
	db *gorm.DB
}

// NewSafetyRepository creates a new repository bound to the given DB
// connection.
func NewSafetyRepository(database *gorm.DB) *SafetyRepository {
	return &SafetyRepository{db: database}
}

// BlockExists reports whether actor has already blocked target.
func (r *SafetyRepository) BlockExists(ctx context.Context, actorID, targetID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		Count(&count).Error
	return count > 0, err
}

// IsBlockedEither reports whether a block exists in either direction between
// the two users. Consumed bidirectionally by the matcher's candidate filter.
func (r *SafetyRepository) IsBlockedEither(ctx context.Context, userA, userB uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(actor_id = ? AND target_id = ?) OR (actor_id = ? AND target_id = ?)",
			userA, userB, userB, userA).
		Count(&count).Error
	return count > 0, err
}

// CreateBlock inserts a block row.
func (r *SafetyRepository) CreateBlock(ctx context.Context, b *db.Block) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// CreateReport inserts a report row.
func (r *SafetyRepository) CreateReport(ctx context.Context, rep *db.Report) error {
	return r.db.WithContext(ctx).Create(rep).Error
}
