package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sefazor/thumbgate/internal/handler"
	"github.com/sefazor/thumbgate/internal/middleware"
	"github.com/sefazor/thumbgate/internal/service"
	"go.uber.org/zap"
)

type Options struct {
	AllowOrigins string
	// RateLimit is requests per minute per IP. Zero disables the limiter.
	RateLimit int
	AccessLog bool
	BodyLimit int
}

type Handlers struct {
	Auth      *handler.AuthHandler
	Thumbnail *handler.ThumbnailHandler
	Upload    *handler.UploadHandler
}

func NewFiberApp(h Handlers, authService *service.AuthService, opts Options, log *zap.SugaredLogger) *fiber.App {
	cfg := fiber.Config{
		AppName:               "thumbgate",
		DisableStartupMessage: true,
	}
	if opts.BodyLimit > 0 {
		cfg.BodyLimit = opts.BodyLimit
	}
	app := fiber.New(cfg)

	// Global Middleware'ler önce tanımlanmalı
	app.Use(recover.New())
	if opts.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     opts.AllowOrigins,
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Registration-Key",
			AllowMethods:     "GET, POST, DELETE",
			AllowCredentials: true,
		}))
	}
	if opts.AccessLog {
		app.Use(logger.New())
	}
	if opts.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
		}))
	}

	optionalAuth := middleware.OptionalAuth(authService, log)
	requireAuth := middleware.AuthMiddleware(authService, log)

	// Thumbnail routes (web + api)
	app.Get("/thumbnail", optionalAuth, h.Thumbnail.GetThumbnail)
	app.Get("/api/v1/thumbnail", optionalAuth, h.Thumbnail.GetThumbnail)

	app.Get("/user_uploads/*", optionalAuth, h.Upload.ServeFile)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", optionalAuth, h.Auth.Register)
	auth.Post("/login", h.Auth.Login)

	uploads := api.Group("/user_uploads", requireAuth)
	uploads.Post("/", h.Upload.UploadFile)
	uploads.Delete("/*", h.Upload.DeleteFile)

	return app
}
