package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sefazor/thumbgate/internal/controller"
	"github.com/sefazor/thumbgate/internal/middleware"
	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/service"
	"github.com/sefazor/thumbgate/pkg/utils"
	"go.uber.org/zap"
)

// RegistrationKeyHeader carries the bootstrap key for anonymous registration.
const RegistrationKeyHeader = "X-Registration-Key"

type AuthHandler struct {
	authController *controller.AuthController
	validator      *utils.Validator
	sessionTTL     time.Duration
	secureCookie   bool
	log            *zap.SugaredLogger
}

func NewAuthHandler(authController *controller.AuthController, validator *utils.Validator, sessionTTL time.Duration, secureCookie bool, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		authController: authController,
		validator:      validator,
		sessionTTL:     sessionTTL,
		secureCookie:   secureCookie,
		log:            log,
	}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	resp, err := h.authController.Register(c.UserContext(), middleware.IdentityFrom(c), c.Get(RegistrationKeyHeader), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailExists):
			return c.Status(fiber.StatusConflict).JSON(models.ErrorResponse(err.Error()))
		case errors.Is(err, service.ErrRegistrationForbidden):
			return c.Status(fiber.StatusForbidden).JSON(models.ErrorResponse(err.Error()))
		case errors.Is(err, service.ErrRealmRequired):
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
		}
		h.log.Errorw("register failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse("Registration failed"))
	}

	h.setSessionCookie(c, resp.Token)
	return c.Status(fiber.StatusCreated).JSON(models.SuccessResponse(resp, "User registered successfully"))
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(err.Error()))
	}

	resp, err := h.authController.Login(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse(err.Error()))
		}
		h.log.Errorw("login failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse("Login failed"))
	}

	h.setSessionCookie(c, resp.Token)
	return c.JSON(models.SuccessResponse(fiber.Map{
		"token": resp.Token,
	}, "Login successful"))
}

func (h *AuthHandler) setSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.sessionTTL),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
