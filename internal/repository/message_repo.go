package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/utils/pagination"
)

// MessageRepository provides data access for ephemeral pairing messages.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new repository bound to the given DB
// connection (or transaction).
func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// Append stores a new ephemeral message on the pairing.
func (r *MessageRepository) Append(ctx context.Context, pairingID, senderID uint64, body string) (*db.EphemeralMessage, error) {
	msg := db.EphemeralMessage{
		PairingID: pairingID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListBefore returns up to limit messages older than the cursor, newest
// first, plus the next cursor when more remain.
func (r *MessageRepository) ListBefore(
	ctx context.Context,
	pairingID uint64,
	paginationToken *string,
	limit int,
) ([]db.EphemeralMessage, *string, error) {
	var messages []db.EphemeralMessage

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("pairing_id = ?", pairingID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if cursor.MessageID > 0 && cursor.CreatedUnix > 0 {
		ts := time.UnixMilli(cursor.CreatedUnix)
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.MessageID,
		)
	}

	if err := query.Find(&messages).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(messages) > limit {
		last := messages[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			MessageID:   last.ID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		messages = messages[:limit]
	}

	return messages, nextToken, nil
}

// AllChronological returns every message of the pairing in original send
// order. Used by the conversion copy.
func (r *MessageRepository) AllChronological(ctx context.Context, pairingID uint64) ([]db.EphemeralMessage, error) {
	var messages []db.EphemeralMessage
	err := r.db.WithContext(ctx).
		Where("pairing_id = ?", pairingID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
