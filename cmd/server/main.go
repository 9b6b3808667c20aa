package main

import (
	"context"

	"github.com/vlvt-app/spark/internal/app"
	"github.com/vlvt-app/spark/internal/cache"
	"github.com/vlvt-app/spark/internal/config"
	"github.com/vlvt-app/spark/internal/db"
	"github.com/vlvt-app/spark/internal/event"
	"github.com/vlvt-app/spark/internal/logger"
	"github.com/vlvt-app/spark/internal/server"
	"github.com/vlvt-app/spark/internal/service/matchmaking"
	"github.com/vlvt-app/spark/internal/service/pairing"
	"github.com/vlvt-app/spark/internal/service/safety"
	"github.com/vlvt-app/spark/internal/service/scheduler"
	"github.com/vlvt-app/spark/internal/service/sessionsvc"
)

func main() {
	cfg := config.Load()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	// Lifecycle event bus. Without a broker the engine still runs; events
	// are simply dropped.
	var publisher event.Publisher = event.Nop{}
	if cfg.AMQP.URL != "" {
		rmq, err := event.NewRabbitMQPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Warn("rabbitmq unavailable, events disabled", "err", err)
		} else {
			defer rmq.Close()
			publisher = rmq
		}
	}

	appCtx := app.New(database, redisCache, publisher, log, cfg)

	matcher := matchmaking.New(appCtx)
	sched := scheduler.New(appCtx, matcher)
	pairingSvc := pairing.New(appCtx, sched)
	safetySvc := safety.New(appCtx, pairingSvc)
	sessionSvc := sessionsvc.New(appCtx, sched)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	router := server.NewRouter(
		sessionsvc.NewRegistrar(sessionSvc),
		pairing.NewRegistrar(pairingSvc),
		safety.NewRegistrar(safetySvc),
	)

	addr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	log.Info("starting HTTP server", "addr", addr)

	if err := server.StartHTTPServer(cfg, router); err != nil {
		log.Error("http server exited", "err", err)
	}
}
