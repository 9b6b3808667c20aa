package db

import (
	"time"
)

// SystemUserID is the decliner sentinel written by the auto-resolution timer.
// Real user ids start at 1.
const SystemUserID uint64 = 0

// MatchOriginConversion tags permanent matches that were born from a
// mutually-saved spark pairing, as opposed to ordinary swipe matches.
const MatchOriginConversion = "spark_conversion"

// User table
type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Active       bool   `gorm:"default:true"`
	Gender       string `gorm:"size:16;not null"`
	BirthDate    time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Age returns the user's age in whole years at the given instant.
func (u *User) Age(now time.Time) int {
	years := now.Year() - u.BirthDate.Year()
	anniversary := u.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// Preference holds a user's matching criteria. Defaults are seeded from the
// main profile; every field is independently overridable.
type Preference struct {
	UserID uint64 `gorm:"primaryKey"`
	// Comma-separated set of sought genders, e.g. "female" or "male,female".
	Genders       string `gorm:"size:64;not null"`
	MinAge        int    `gorm:"not null;default:18"`
	MaxAge        int    `gorm:"not null;default:99"`
	MaxDistanceKm float64   `gorm:"not null;default:25"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// Session is a user's time-boxed activation window. Exact coordinates are
// private and never serialized; all inter-user distance math runs on the
// fuzzed pair.
//
// Invariant: at most one active (unended, unexpired) session per user.
type Session struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	UserID    uint64  `gorm:"not null;index:idx_sessions_user_active,priority:1"`
	Lat       float64 `gorm:"not null" json:"-"`
	Lng       float64 `gorm:"not null" json:"-"`
	FuzzedLat float64 `gorm:"not null"`
	FuzzedLng float64 `gorm:"not null"`
	StartedAt time.Time  `gorm:"not null"`
	ExpiresAt time.Time  `gorm:"not null;index:idx_sessions_user_active,priority:2"`
	EndedAt   *time.Time `gorm:"index"`
}

// Active reports whether the session is neither ended nor expired at now.
func (s *Session) Active(now time.Time) bool {
	return s.EndedAt == nil && s.ExpiresAt.After(now)
}

// DeclineRecord is the bounded cross-session decline memory for an unordered
// user pair. UserLo < UserHi. Count starts at 1 and increments only when the
// same pair is declined again in a different session; at the threshold the
// row is deleted instead of capped, so the pair re-enters each other's pool.
type DeclineRecord struct {
	UserLo          uint64    `gorm:"primaryKey;autoIncrement:false"`
	UserHi          uint64    `gorm:"primaryKey;autoIncrement:false"`
	Count           int       `gorm:"not null;default:1"`
	FirstDeclinedAt time.Time `gorm:"not null"`
	LastSessionID   uint64    `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// Pairing is an ephemeral auto-created match between two users. UserA < UserB.
//
// Invariants:
//   - active iff DeclinerID is null, not expired, not converted
//   - at most one active pairing per user system-wide
type Pairing struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID uint64 `gorm:"not null;index"`
	UserA     uint64 `gorm:"not null;index"`
	UserB     uint64 `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	SaveA     bool      `gorm:"not null;default:false"`
	SaveB     bool      `gorm:"not null;default:false"`
	// DeclinerID is the user who declined, or SystemUserID for auto-resolution.
	DeclinerID       *uint64
	DeclinedAt       *time.Time
	ConvertedMatchID *string `gorm:"size:36"`
}

// Active reports whether the pairing is still unresolved at now.
func (p *Pairing) Active(now time.Time) bool {
	return p.DeclinerID == nil && p.ConvertedMatchID == nil && p.ExpiresAt.After(now)
}

// HasUser reports whether the given user is one of the two participants.
func (p *Pairing) HasUser(userID uint64) bool {
	return p.UserA == userID || p.UserB == userID
}

// OtherUser returns the participant that is not userID.
func (p *Pairing) OtherUser(userID uint64) uint64 {
	if p.UserA == userID {
		return p.UserB
	}
	return p.UserA
}

// SaveOf returns the save vote belonging to userID.
func (p *Pairing) SaveOf(userID uint64) bool {
	if p.UserA == userID {
		return p.SaveA
	}
	return p.SaveB
}

// EphemeralMessage lives exactly as long as its pairing: deleted when the
// pairing is discarded, copied into permanent storage on conversion.
type EphemeralMessage struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	PairingID uint64 `gorm:"not null;index:idx_ephemeral_pairing_created,priority:1"`
	SenderID  uint64 `gorm:"not null"`
	Body      string `gorm:"size:2000;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_ephemeral_pairing_created,priority:2"`
}

// Match is an ordinary long-lived match record; Origin distinguishes
// conversion-born matches from the regular kind.
type Match struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserA     uint64 `gorm:"not null;index"`
	UserB     uint64 `gorm:"not null;index"`
	Origin    string `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// Message is a permanent chat message belonging to a Match.
type Message struct {
	ID        string `gorm:"primaryKey;size:36"`
	MatchID   string `gorm:"size:36;not null;index"`
	SenderID  uint64 `gorm:"not null"`
	Body      string `gorm:"size:2000;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// Block is a durable account-level block. One row per (actor, target);
// inserts are idempotent at the service layer.
type Block struct {
	ActorID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	TargetID  uint64 `gorm:"primaryKey;autoIncrement:false"`
	PairingID uint64
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Report is a safety report tagged with its originating pairing. A report
// always implies a block, never the reverse.
type Report struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ActorID   uint64 `gorm:"not null;index"`
	TargetID  uint64 `gorm:"not null;index"`
	PairingID uint64 `gorm:"not null"`
	Reason    string `gorm:"size:32;not null"`
	Details   string `gorm:"size:2000"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
