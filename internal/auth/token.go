package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hrms/internal/apperror"
	"hrms/internal/config"
)

var (
	ErrTokenExpired   = apperror.WithCode(apperror.KindUnauthorized, "TOKEN_EXPIRED", "token expired")
	ErrTokenMalformed = apperror.WithCode(apperror.KindUnauthorized, "TOKEN_INVALID", "invalid token")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the verified identity carried by a token. Immutable once issued.
type Claims struct {
	UserID       uuid.UUID  `json:"userId"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	CompanyID    *uuid.UUID `json:"companyId,omitempty"`
	EmployeeID   *uuid.UUID `json:"employeeId,omitempty"`
	IsSuperAdmin bool       `json:"isSuperAdmin"`
}

type tokenClaims struct {
	Claims
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is what login and refresh hand back to the client
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// TokenService signs and verifies access and refresh tokens with distinct secrets
type TokenService struct {
	cfg config.JWTConfig
	now func() time.Time
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{cfg: cfg, now: time.Now}
}

// Issue signs a fresh access/refresh pair embedding claims
func (s *TokenService) Issue(claims Claims) (*TokenPair, error) {
	now := s.now()

	access, err := s.sign(claims, tokenTypeAccess, s.cfg.AccessSecret, now, now.Add(s.cfg.AccessTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.sign(claims, tokenTypeRefresh, s.cfg.RefreshSecret, now, now.Add(s.cfg.RefreshTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.cfg.AccessTTL),
	}, nil
}

func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	return s.verify(token, tokenTypeAccess, s.cfg.AccessSecret)
}

func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	return s.verify(token, tokenTypeRefresh, s.cfg.RefreshSecret)
}

func (s *TokenService) sign(claims Claims, tokenType string, secret []byte, issuedAt, expiresAt time.Time) (string, error) {
	tc := tokenClaims{
		Claims:    claims,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(secret)
}

func (s *TokenService) verify(token, tokenType string, secret []byte) (*Claims, error) {
	tc := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, tc, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired.WithCause(err)
		}
		return nil, ErrTokenMalformed.WithCause(err)
	}
	if !parsed.Valid || tc.TokenType != tokenType || tc.UserID == uuid.Nil {
		return nil, ErrTokenMalformed
	}

	claims := tc.Claims
	return &claims, nil
}

// ExtractBearer parses an "Authorization: Bearer <token>" value.
// Absent or malformed headers report false, never an error.
func ExtractBearer(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
