package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/vlvt-app/spark/internal/db"
)

// ProfileRepository provides read access to users and their matching
// preferences.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new repository bound to the given DB
// connection.
func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// UserByID fetches a user by primary key.
func (r *ProfileRepository) UserByID(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UsersByIDs fetches a batch of users keyed by id.
func (r *ProfileRepository) UsersByIDs(ctx context.Context, ids []uint64) (map[uint64]db.User, error) {
	if len(ids) == 0 {
		return map[uint64]db.User{}, nil
	}
	var users []db.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint64]db.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

// PreferenceByUser returns the user's matching preference, falling back to
// permissive defaults when none has been stored yet.
func (r *ProfileRepository) PreferenceByUser(ctx context.Context, userID uint64) (*db.Preference, error) {
	var p db.Preference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &db.Preference{
			UserID:        userID,
			Genders:       "",
			MinAge:        18,
			MaxAge:        99,
			MaxDistanceKm: 25,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PreferencesByUserIDs fetches a batch of preferences keyed by user id.
// Users without a stored row get the same defaults as PreferenceByUser.
func (r *ProfileRepository) PreferencesByUserIDs(ctx context.Context, ids []uint64) (map[uint64]db.Preference, error) {
	byID := make(map[uint64]db.Preference, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	var prefs []db.Preference
	if err := r.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&prefs).Error; err != nil {
		return nil, err
	}
	for _, p := range prefs {
		byID[p.UserID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			byID[id] = db.Preference{UserID: id, Genders: "", MinAge: 18, MaxAge: 99, MaxDistanceKm: 25}
		}
	}
	return byID, nil
}
