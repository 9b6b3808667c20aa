package main

import (
	"log"

	"github.com/vlvt-app/spark/internal/config"
	"github.com/vlvt-app/spark/internal/db"
)

func main() {
	// Load configuration
	cfg := config.Load()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	if err := db.SeedTestData(database); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Println("Seeding completed.")
}
