package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hrms/internal/apperror"
	"hrms/internal/auth"
	"hrms/internal/authz"
	"hrms/internal/model"
	"hrms/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// --- DTOs ---

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LoginResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresAt    string        `json:"expiresAt"`
	User         *UserResponse `json:"user"`
}

type MeResponse struct {
	User        *UserResponse `json:"user"`
	Permissions []string      `json:"permissions"`
}

var ErrInvalidCredentials = apperror.Unauthorized("invalid email or password")

// --- Interface ---

type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*LoginResponse, error)
	Me(ctx context.Context, claims *auth.Claims) (*MeResponse, error)
}

type authService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	engine *authz.Engine
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, engine *authz.Engine) AuthService {
	return &authService{users: users, tokens: tokens, engine: engine}
}

// --- Implementation ---

func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Refresh re-reads the user so deactivations and role changes take effect
func (s *authService) Refresh(ctx context.Context, req RefreshRequest) (*LoginResponse, error) {
	claims, err := s.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Unauthorized("user no longer exists")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, apperror.Unauthorized("user is inactive")
	}
	return s.issue(user)
}

func (s *authService) Me(ctx context.Context, claims *auth.Claims) (*MeResponse, error) {
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user not found")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	perms, err := s.engine.ResolvePermissions(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	return &MeResponse{User: toUserResponse(user), Permissions: perms}, nil
}

// --- Helpers ---

// ClaimsForUser derives token claims from the persisted user
func ClaimsForUser(user *model.User) auth.Claims {
	return auth.Claims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.PrimaryRole(),
		CompanyID:    user.CompanyID,
		EmployeeID:   user.EmployeeID,
		IsSuperAdmin: user.IsSuperAdmin,
	}
}

func (s *authService) issue(user *model.User) (*LoginResponse, error) {
	pair, err := s.tokens.Issue(ClaimsForUser(user))
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		User:         toUserResponse(user),
	}, nil
}
