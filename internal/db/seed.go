package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedTestData resets the database and populates it with demo users spread
// around central London, each with a profile-derived preference and an active
// session, so a freshly booted engine starts pairing immediately.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	tables := []string{
		"reports", "blocks", "messages", "matches",
		"ephemeral_messages", "pairings", "decline_records",
		"sessions", "preferences", "users",
	}
	for _, tbl := range tables {
		if err := db.Exec("DELETE FROM " + tbl).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", tbl, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE users AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE sessions AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE pairings AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('users','sessions','pairings')")
	}

	log.Println("Cleared existing data")

	// Center point: Soho, London.
	const baseLat, baseLng = 51.5137, -0.1366

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	for i := 1; i <= 20; i++ {
		gender, want := "male", "female"
		if i > 10 {
			gender, want = "female", "male"
		}

		age := 21 + r.Intn(15)
		user := User{
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: string(hash),
			Gender:       gender,
			Active:       true,
			BirthDate:    now.AddDate(-age, 0, -r.Intn(364)),
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		pref := Preference{
			UserID:        user.ID,
			Genders:       want,
			MinAge:        18,
			MaxAge:        45,
			MaxDistanceKm: 10,
		}
		if err := db.Create(&pref).Error; err != nil {
			return fmt.Errorf("failed to seed preference: %w", err)
		}

		// Scatter within roughly 3 km of the center.
		lat := baseLat + (r.Float64()-0.5)*0.05
		lng := baseLng + (r.Float64()-0.5)*0.05
		session := Session{
			UserID:    user.ID,
			Lat:       lat,
			Lng:       lng,
			FuzzedLat: lat + (r.Float64()-0.5)*0.004,
			FuzzedLng: lng + (r.Float64()-0.5)*0.004,
			StartedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}
		if err := db.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to seed session: %w", err)
		}
	}
	log.Println("Seeded 20 users with preferences and active sessions.")

	return nil
}
