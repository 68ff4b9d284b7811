// Package auth validates bearer tokens issued by the external identity
// provider and mints development tokens for local tooling.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "stockledger/internal/core/context"
)

// ErrNoUser is returned for a validly signed token without a user id.
var ErrNoUser = errors.New("token has no user id")

// JWTConfig configures HS256 tokens.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{Secret: secret, Issuer: "stockledger", AccessTokenTTL: 15 * time.Minute}
}

// Claims is the token payload. Short keys keep headers small.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"uid"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"perms,omitempty"`
	IsAdmin     bool     `json:"adm,omitempty"`
}

func (c *Claims) user() *appctx.UserContext {
	return &appctx.UserContext{
		UserID:      c.UserID,
		Email:       c.Email,
		Roles:       c.Roles,
		Permissions: c.Permissions,
		IsAdmin:     c.IsAdmin,
		SessionID:   c.ID,
	}
}

// JWTService signs and validates access tokens. It implements
// middleware.JWTValidator.
type JWTService struct {
	cfg    JWTConfig
	key    []byte
	parser *jwt.Parser
}

func NewJWTService(cfg JWTConfig) *JWTService {
	return &JWTService{
		cfg: cfg,
		key: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// GenerateAccessToken signs a token for user. Production tokens come from
// the identity provider; seeding and tests use this.
func (s *JWTService) GenerateAccessToken(user appctx.UserContext) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.cfg.AccessTokenTTL)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:      user.UserID,
		Email:       user.Email,
		Roles:       user.Roles,
		Permissions: user.Permissions,
		IsAdmin:     user.IsAdmin,
	}).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken checks signature, issuer and expiry and returns the user.
func (s *JWTService) ValidateToken(raw string) (*appctx.UserContext, error) {
	var claims Claims
	if _, err := s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == "" {
		return nil, ErrNoUser
	}
	return claims.user(), nil
}
