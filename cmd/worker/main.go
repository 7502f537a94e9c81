package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"incentivos/api/internal/cache"
	"incentivos/api/internal/config"
	"incentivos/api/internal/database"
	"incentivos/api/internal/log"
	"incentivos/api/internal/metrics"
	"incentivos/api/internal/queue"
	"incentivos/api/internal/repository"
	"incentivos/api/internal/security"
	"incentivos/api/internal/service"
	"incentivos/api/internal/storage"
	"incentivos/api/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel).With().Str("component", "worker").Logger()
	metrics.Register(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure audit bucket failed")
	}

	tokens, err := security.NewTokenManager(cfg.Security)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token settings")
	}

	userRepo := repository.NewUserRepository(dbPool)
	auditRepo := repository.NewAuditRepository(dbPool)
	deadLetters := queue.NewDeadLetters(client, cfg.Jobs.DeadLetterStream)

	auth := service.NewAuthService(
		userRepo,
		repository.NewRoleRepository(dbPool),
		repository.NewSessionRepository(dbPool),
		database.NewTransactor(dbPool),
		tokens,
		security.NewPasswordHasher(cfg.Security.PasswordIterations),
		logger,
	)
	audit := service.NewAuditService(auditRepo, userRepo, deadLetters, logger)
	exporter := service.NewExportService(auditRepo, objectStore, logger)

	processor := tasks.NewProcessor(auth, audit, deadLetters, exporter, cfg.Worker.ReplayBatch, logger)
	consumer := queue.NewConsumer(client, cfg.Jobs.Stream, cfg.Worker, logger, processor)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
