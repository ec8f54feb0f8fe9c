package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/er-portal/internal/backendapi"
	"github.com/dharsanguruparan/er-portal/internal/config"
	"github.com/dharsanguruparan/er-portal/internal/repository"
	"github.com/dharsanguruparan/er-portal/internal/worker"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	api, err := backendapi.New(cfg.APIBaseURL, cfg.APITimeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init backend api client")
	}

	var audit worker.AuditLog
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
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerPool,
	})
	processor := worker.NewProcessor(api, audit, log)

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	log.Info().Int("concurrency", cfg.WorkerPool).Msg("worker started")
	if err := srv.Run(processor.Handler()); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
