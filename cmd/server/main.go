package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/er-portal/internal/backendapi"
	"github.com/dharsanguruparan/er-portal/internal/blobstore"
	"github.com/dharsanguruparan/er-portal/internal/config"
	"github.com/dharsanguruparan/er-portal/internal/queue"
	"github.com/dharsanguruparan/er-portal/internal/repository"
	"github.com/dharsanguruparan/er-portal/internal/server"
	"github.com/dharsanguruparan/er-portal/internal/session"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	sessions := session.NewRedisStore(redisClient, cfg.SessionTTL)

	blobs, err := blobstore.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init object store")
	}
	if ok, err := blobs.ContainerExists(ctx); err != nil || !ok {
		// Uploads will fail fast per request; surfacing it at startup makes
		// the misconfiguration visible before the first user hits it.
		log.Warn().Err(err).Str("container", blobs.Container()).
			Msg("storage container not reachable at startup")
	}

	api, err := backendapi.New(cfg.APIBaseURL, cfg.APITimeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init backend api client")
	}

	var audit server.AuditLog
	if cfg.DatabaseURL != "" {
		pool, err := repository.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
		if err := repository.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		audit = repository.NewAuditRepository(pool)
	} else {
		log.Warn().Msg("ERPORTAL_DATABASE_URL not set, upload audit disabled")
	}

	notify := queue.NewClient(asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}))
	defer notify.Close()

	srv := server.New(cfg, sessions, blobs, api, notify, audit, log)
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
