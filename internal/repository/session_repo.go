package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vlvt-app/spark/internal/db"
)

// SessionRepository provides data access for spark sessions.
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new repository bound to the given DB
// connection (or transaction).
func NewSessionRepository(database *gorm.DB) *SessionRepository {
	return &SessionRepository{db: database}
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, s *db.Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// ByID fetches a session by primary key.
func (r *SessionRepository) ByID(ctx context.Context, id uint64) (*db.Session, error) {
	var s db.Session
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ActiveByUser returns the user's active session, or nil when there is none.
func (r *SessionRepository) ActiveByUser(ctx context.Context, userID uint64, now time.Time) (*db.Session, error) {
	var s db.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND ended_at IS NULL AND expires_at > ?", userID, now).
		Order("id DESC").
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// End stamps the session's manual end time.
func (r *SessionRepository) End(ctx context.Context, sessionID uint64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Session{}).
		Where("id = ? AND ended_at IS NULL", sessionID).
		Update("ended_at", at).Error
}

// ActiveSessions lists every active session except the excluded user's.
// Pass 0 to exclude nobody.
func (r *SessionRepository) ActiveSessions(ctx context.Context, excludeUser uint64, now time.Time) ([]db.Session, error) {
	var sessions []db.Session
	q := r.db.WithContext(ctx).
		Where("ended_at IS NULL AND expires_at > ?", now)
	if excludeUser != 0 {
		q = q.Where("user_id <> ?", excludeUser)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// ActiveSessionIDsWithoutPairing returns ids of active sessions whose owner
// has no active pairing. This feeds the redundant sweep: any session stranded
// by a lost event-driven trigger shows up here on the next cycle.
func (r *SessionRepository) ActiveSessionIDsWithoutPairing(ctx context.Context, now time.Time) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Table("sessions s").
		Select("s.id").
		Where("s.ended_at IS NULL AND s.expires_at > ?", now).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM pairings p
				WHERE (p.user_a = s.user_id OR p.user_b = s.user_id)
				  AND p.decliner_id IS NULL
				  AND p.converted_match_id IS NULL
				  AND p.expires_at > ?
			)`, now).
		Pluck("s.id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// LockActive claims the session row with a non-blocking row lock so two
// concurrent matcher invocations can never select the same candidate.
// Returns nil (no error) when the row is already claimed or no longer active.
//
// SQLite, used by the tests, has no row locks; it serializes writers anyway,
// so the plain read preserves the semantics there.
func (r *SessionRepository) LockActive(ctx context.Context, tx *gorm.DB, sessionID uint64, now time.Time) (*db.Session, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var s db.Session
	err := q.Where("id = ? AND ended_at IS NULL AND expires_at > ?", sessionID, now).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
