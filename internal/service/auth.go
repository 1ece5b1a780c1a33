package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/promptvault/promptvault-server/internal/auth"
	"github.com/promptvault/promptvault-server/internal/domain"
	domainerrors "github.com/promptvault/promptvault-server/internal/errors"
	"github.com/promptvault/promptvault-server/internal/id"
	"github.com/promptvault/promptvault-server/internal/store"
	"github.com/promptvault/promptvault-server/internal/validation"
)

// AuthService handles registration, sign-in and token verification.
type AuthService struct {
	users     store.UserStore
	tokens    *auth.TokenService
	validator *validation.Validator
	hasher    auth.Params
	logger    *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(users store.UserStore, tokens *auth.TokenService, v *validation.Validator, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		validator: v,
		hasher:    auth.DefaultParams,
		logger:    logger,
	}
}

// SetPasswordParams overrides the Argon2id parameters used for new accounts.
func (s *AuthService) SetPasswordParams(p auth.Params) {
	s.hasher = p
}

// RegisterRequest contains the data for a new account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=1024"`
	DisplayName string `json:"display_name" validate:"max=100"`
	PhotoURL    string `json:"photo_url" validate:"omitempty,url"`
}

// LoginRequest contains user credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse contains the signed-in user and an access token.
type AuthResponse struct {
	User        *domain.Profile `json:"user"`
	AccessToken string          `json:"access_token"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) || errors.Is(err, auth.ErrPasswordEmpty) {
			return nil, domainerrors.Validation(err.Error())
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := id.Generate(id.PrefixUser)
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	user := &domain.User{
		ID:           userID,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: passwordHash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PhotoURL:     req.PhotoURL,
	}
	user.InitTimestamps()

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, domainerrors.AlreadyExists("email already in use")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return s.issue(user)
}

// Authenticate verifies credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) Authenticate(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.InvalidCredentials("invalid email or password")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		s.logger.Debug("password mismatch", "user_id", user.ID)
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	s.logger.Info("user signed in", "user_id", user.ID)
	return s.issue(user)
}

// VerifyAccessToken validates a token and returns the associated user.
// Used by authentication middleware.
func (s *AuthService) VerifyAccessToken(ctx context.Context, token string) (*domain.User, *auth.AccessClaims, error) {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenRevoked) {
			return nil, nil, domainerrors.Unauthorized("token has been signed out")
		}
		return nil, nil, domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "invalid or expired token")
	}

	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, domainerrors.Unauthorized("user not found")
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	return user, claims, nil
}

// Logout revokes the token the claims came from.
func (s *AuthService) Logout(claims *auth.AccessClaims) {
	if claims == nil {
		return
	}
	s.tokens.Revoke(claims)
	s.logger.Info("user signed out", "user_id", claims.UserID)
}

// GetProfile returns the public profile of a user.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user.Profile(), nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResponse, error) {
	token, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	return &AuthResponse{
		User:        user.Profile(),
		AccessToken: token,
		ExpiresAt:   time.Now().Add(s.tokens.AccessTokenDuration()),
	}, nil
}
