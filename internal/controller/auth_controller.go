package controller

import (
	"context"

	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/service"
)

type AuthController struct {
	authService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{
		authService: authService,
	}
}

func (c *AuthController) Register(ctx context.Context, caller *models.Identity, registrationKey string, req models.RegisterRequest) (*models.AuthResponse, error) {
	return c.authService.Register(ctx, caller, registrationKey, req)
}

func (c *AuthController) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	return c.authService.Login(ctx, req)
}
