package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sefazor/thumbgate/internal/models"
	"github.com/sefazor/thumbgate/internal/repository"
	"github.com/sefazor/thumbgate/pkg/bcrypt"
	jwtPkg "github.com/sefazor/thumbgate/pkg/jwt"
	"github.com/sefazor/thumbgate/pkg/utils"
	"go.uber.org/zap"
)

const apiKeyLength = 32

// AuthService resolves sessions, bearer tokens and API keys to an identity.
type AuthService struct {
	userRepo        *repository.UserRepository
	jwtSecret       []byte
	sessionTTL      time.Duration
	registrationKey string
	log             *zap.SugaredLogger
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, sessionTTL time.Duration, registrationKey string, log *zap.SugaredLogger) *AuthService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AuthService{
		userRepo:        userRepo,
		jwtSecret:       []byte(jwtSecret),
		sessionTTL:      sessionTTL,
		registrationKey: registrationKey,
		log:             log,
	}
}

// Register creates a user. A logged-in caller always registers into their
// own realm and req.RealmID is ignored. Anonymous callers must present the
// configured registration key and name the realm.
func (s *AuthService) Register(ctx context.Context, caller *models.Identity, registrationKey string, req models.RegisterRequest) (*models.AuthResponse, error) {
	realmID, err := s.registrationRealm(caller, registrationKey, req.RealmID)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	// Email kontrolü
	exists, err := s.userRepo.EmailExists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashedPassword, err := bcrypt.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	apiKey, err := utils.GenerateRandomString(apiKeyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}

	user := &models.User{
		RealmID:  realmID,
		FullName: req.FullName,
		Email:    email,
		Password: hashedPassword,
		APIKey:   apiKey,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	token, err := jwtPkg.GenerateToken(s.jwtSecret, user.ID, user.RealmID, user.Email, s.sessionTTL)
	if err != nil {
		return nil, err
	}

	s.log.Infow("user registered", "user_id", user.ID, "realm_id", user.RealmID)
	return &models.AuthResponse{
		Token: token,
		User:  *user,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.ComparePassword(user.Password, req.Password); err != nil {
		s.log.Infow("login failed", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	token, err := jwtPkg.GenerateToken(s.jwtSecret, user.ID, user.RealmID, user.Email, s.sessionTTL)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		Token: token,
		User:  *user,
	}, nil
}

func (s *AuthService) registrationRealm(caller *models.Identity, registrationKey string, requested uint) (uint, error) {
	if caller != nil {
		return caller.RealmID, nil
	}
	if s.registrationKey == "" || subtle.ConstantTimeCompare([]byte(registrationKey), []byte(s.registrationKey)) != 1 {
		return 0, ErrRegistrationForbidden
	}
	if requested == 0 {
		return 0, ErrRealmRequired
	}
	return requested, nil
}

// IdentityFromToken validates a session or bearer JWT.
func (s *AuthService) IdentityFromToken(ctx context.Context, token string) (*models.Identity, error) {
	claims, err := jwtPkg.ValidateToken(s.jwtSecret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	// Kullanıcı silinmiş olabilir
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return &models.Identity{UserID: user.ID, RealmID: user.RealmID}, nil
}

// IdentityFromAPIKey resolves an API key. When email is non-empty (HTTP
// basic auth) it must belong to the key's owner.
func (s *AuthService) IdentityFromAPIKey(ctx context.Context, email, apiKey string) (*models.Identity, error) {
	if apiKey == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if email != "" && !strings.EqualFold(strings.TrimSpace(email), user.Email) {
		return nil, ErrInvalidCredentials
	}
	return &models.Identity{UserID: user.ID, RealmID: user.RealmID}, nil
}
