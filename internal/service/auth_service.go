package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// Claims extends JWT standard claims with the fields the identity provider
// gateway puts in its bearer tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID  uuid.UUID  `json:"uid"`
	Role    model.Role `json:"role"`
	ClassID *uuid.UUID `json:"class_id,omitempty"`
	Name    string     `json:"name,omitempty"`
}

// Principal converts verified claims into the caller identity used by services.
func (c *Claims) Principal() *model.Principal {
	return &model.Principal{UserID: c.UserID, Role: c.Role, ClassID: c.ClassID, Name: c.Name}
}

// AuthService verifies (and, for tooling, mints) bearer tokens.
type AuthService struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		expiry: cfg.JWTExpiry,
	}
}

// GenerateToken mints a signed token for a user. Used by simctl and tests;
// production tokens come from the identity provider.
func (s *AuthService) GenerateToken(u *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		UserID:  u.ID,
		Role:    u.Role,
		ClassID: u.ClassID,
		Name:    u.Name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and validates a token string. Expired tokens return an
// error wrapping jwt.ErrTokenExpired.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: token has no user id", ErrUnauthenticated)
	}
	switch claims.Role {
	case model.RoleStudent, model.RoleCollaborator, model.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}
	return claims, nil
}
