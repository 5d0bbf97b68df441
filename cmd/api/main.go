package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sefazor/thumbgate/internal/config"
	"github.com/sefazor/thumbgate/internal/controller"
	"github.com/sefazor/thumbgate/internal/handler"
	"github.com/sefazor/thumbgate/internal/repository"
	"github.com/sefazor/thumbgate/internal/server"
	"github.com/sefazor/thumbgate/internal/service"
	"github.com/sefazor/thumbgate/pkg/database"
	"github.com/sefazor/thumbgate/pkg/logger"
	"github.com/sefazor/thumbgate/pkg/storage"
	"github.com/sefazor/thumbgate/pkg/utils"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	// Config'i yükle
	cfg := config.LoadConfig()

	logg, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logg.Sync()

	if err := cfg.Validate(); err != nil {
		logg.Fatalw("invalid configuration", "error", err)
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		logg.Fatalw("database init failed", "error", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	// Storage backend
	var backend storage.Backend
	switch cfg.Uploads.Backend {
	case config.UploadBackendS3:
		backend, err = storage.NewS3Storage(context.Background(), cfg.S3)
	default:
		backend, err = storage.NewLocalStorage(cfg.Uploads.LocalDir)
	}
	if err != nil {
		logg.Fatalw("failed to initialize upload storage", "backend", cfg.Uploads.Backend, "error", err)
	}

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.SessionTTL, cfg.RegistrationKey, logg)
	uploadService := service.NewUploadService(uploadRepo, backend, cfg.Uploads.MaxSize, logg)
	thumbnailService := service.NewThumbnailService(uploadRepo, cfg, logg)

	// Controllers
	authController := controller.NewAuthController(authService)
	thumbnailController := controller.NewThumbnailController(thumbnailService, uploadService)

	validator := utils.NewValidator()

	// Handlers
	handlers := server.Handlers{
		Auth:      handler.NewAuthHandler(authController, validator, cfg.SessionTTL, cfg.AppEnv == "production", logg),
		Thumbnail: handler.NewThumbnailHandler(thumbnailController, validator, logg),
		Upload:    handler.NewUploadHandler(uploadService, thumbnailController, logg),
	}

	app := server.NewFiberApp(handlers, authService, server.Options{
		AllowOrigins: os.Getenv("CORS_ALLOW_ORIGINS"),
		RateLimit:    120,
		AccessLog:    true,
		BodyLimit:    int(cfg.Uploads.MaxSize) + 1024*1024,
	}, logg)

	logg.Infow("starting server",
		"port", cfg.Port,
		"upload_backend", backend.Tag(),
		"thumbor_enabled", cfg.Thumbor.Enabled(),
	)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logg.Fatalw("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logg.Errorw("shutdown failed", "error", err)
	}
}
