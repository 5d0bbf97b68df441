package middleware

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/service"
	"go.uber.org/zap"
)

const (
	SessionCookieName = "session"

	localsIdentity = "identity"
)

var errNoCredentials = errors.New("no credentials")

// OptionalAuth resolves the requester from the api_key query parameter,
// the Authorization header (Basic email:api_key or Bearer JWT) or the
// session cookie, in that order. Anonymous requests pass through. Bad
// credentials in the query or header are rejected with 401; a stale
// session cookie is ignored.
func OptionalAuth(authService *service.AuthService, log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := resolveIdentity(c, authService)
		switch {
		case err == nil:
			c.Locals(localsIdentity, identity)
		case errors.Is(err, errNoCredentials):
		case errors.Is(err, service.ErrInvalidCredentials):
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("Invalid credentials"))
		default:
			log.Errorw("identity lookup failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse("Internal server error"))
		}
		return c.Next()
	}
}

// AuthMiddleware accepts the same credentials as OptionalAuth but
// rejects anonymous requests.
func AuthMiddleware(authService *service.AuthService, log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := resolveIdentity(c, authService)
		switch {
		case err == nil:
			c.Locals(localsIdentity, identity)
			return c.Next()
		case errors.Is(err, errNoCredentials):
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("Authentication required"))
		case errors.Is(err, service.ErrInvalidCredentials):
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse("Invalid credentials"))
		default:
			log.Errorw("identity lookup failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse("Internal server error"))
		}
	}
}

// IdentityFrom returns the identity stored by OptionalAuth, or nil.
func IdentityFrom(c *fiber.Ctx) *models.Identity {
	identity, _ := c.Locals(localsIdentity).(*models.Identity)
	return identity
}

func resolveIdentity(c *fiber.Ctx, authService *service.AuthService) (*models.Identity, error) {
	ctx := c.UserContext()

	if apiKey := c.Query("api_key"); apiKey != "" {
		return authService.IdentityFromAPIKey(ctx, "", apiKey)
	}

	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		scheme, value, _ := strings.Cut(authHeader, " ")
		value = strings.TrimSpace(value)
		switch strings.ToLower(scheme) {
		case "basic":
			email, apiKey, ok := parseBasicAuth(value)
			if !ok {
				return nil, service.ErrInvalidCredentials
			}
			return authService.IdentityFromAPIKey(ctx, email, apiKey)
		case "bearer":
			return authService.IdentityFromToken(ctx, value)
		default:
			return nil, service.ErrInvalidCredentials
		}
	}

	if token := c.Cookies(SessionCookieName); token != "" {
		identity, err := authService.IdentityFromToken(ctx, token)
		if errors.Is(err, service.ErrInvalidCredentials) {
			return nil, errNoCredentials
		}
		return identity, err
	}

	return nil, errNoCredentials
}

func parseBasicAuth(value string) (string, string, bool) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", "", false
	}
	email, apiKey, ok := strings.Cut(string(raw), ":")
	if !ok || email == "" || apiKey == "" {
		return "", "", false
	}
	return email, apiKey, true
}
