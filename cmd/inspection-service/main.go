package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inspection-service/internal/annotate"
	"inspection-service/internal/auth"
	"inspection-service/internal/config"
	"inspection-service/internal/db"
	"inspection-service/internal/detection"
	httphandler "inspection-service/internal/http"
	"inspection-service/internal/http/middleware"
	"inspection-service/internal/logger"
	"inspection-service/internal/notify"
	"inspection-service/internal/report"
	"inspection-service/internal/repository"
	"inspection-service/internal/service"
	"inspection-service/internal/session"
	"inspection-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment, cfg.LogLevel)

	database, err := db.New(cfg.DB, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	artifacts, err := storage.NewArtifactStore(cfg.Storage)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to prepare artifact directory")
	}

	detector := detection.NewClient(cfg.Detection, appLogger)
	annotator := annotate.New()

	sessions, err := session.NewManager(detector, annotator, artifacts, cfg.Live, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to create live session manager")
	}

	synth := report.NewSynthesizer(artifacts, cfg.Storage, cfg.Report, appLogger)
	inspectionRepo := repository.NewInspectionRepository(database)
	inspectionService := service.NewInspectionService(detector, annotator, artifacts, inspectionRepo, synth, sessions, appLogger)

	// R2 mirror is optional
	r2Client, err := storage.NewR2Client(cfg.R2)
	switch {
	case err == nil:
		inspectionService.WithMirror(r2Client)
	case errors.Is(err, storage.ErrNotConfigured):
		appLogger.Warn().Msg("R2 storage not configured, reports will not be mirrored")
	default:
		appLogger.Fatal().Err(err).Msg("failed to initialize R2 client")
	}

	// Telegram notifications are optional
	notifier, err := notify.NewTelegram(cfg.Telegram, appLogger)
	switch {
	case err == nil:
		inspectionService.WithNotifier(notifier)
	case errors.Is(err, notify.ErrNotConfigured):
		appLogger.Info().Msg("telegram notifier disabled")
	default:
		appLogger.Warn().Err(err).Msg("telegram notifier unavailable")
	}

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(inspectionService, cfg, appLogger)
	authMiddleware := middleware.Auth(tokenParser)
	ready := func(ctx context.Context) error { return db.HealthCheck(ctx, database) }
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, ready, artifacts.HTTPFileSystem(), appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Str("artifact_dir", cfg.Storage.ArtifactDir).Msg("starting inspection service")

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server exited")
}
