package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/vlvt-app/spark/internal/cache"
	"github.com/vlvt-app/spark/internal/config"
	"github.com/vlvt-app/spark/internal/event"
)

// AppContext holds shared dependencies (DB, Redis, Publisher, Logger, etc.)
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Publisher  event.Publisher
	Logger     *slog.Logger
	Cfg        *config.Config
}

// New creates a new AppContext
func New(db *gorm.DB, rdb *cache.RedisCache, pub event.Publisher, logger *slog.Logger, cfg *config.Config) *AppContext {
	return &AppContext{
		DB:         db,
		RedisCache: rdb,
		Publisher:  pub,
		Logger:     logger,
		Cfg:        cfg,
	}
}
