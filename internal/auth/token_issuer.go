// Package auth issues and validates the bearer tokens presented by the content
// store when it calls the hook and admin endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 60 * time.Minute
	bearerPrefix    = "bearer "

	// ScopeContentHooks is the scope claim carried by hook tokens.
	ScopeContentHooks = "content-hooks"
)

var (
	ErrMissingSigningSecret = errors.New("hook token: signing secret required")
	ErrMissingIssuer        = errors.New("hook token: issuer required")
	ErrMissingAudience      = errors.New("hook token: audience required")
	ErrMissingSubject       = errors.New("hook token: subject required")
	ErrMissingToken         = errors.New("hook token: token required")
	ErrInvalidToken         = errors.New("hook token: invalid token")
	ErrExpiredToken         = errors.New("hook token: token expired")
)

// HookClaims is the payload of a hook token.
type HookClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the hook token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer signs and validates HS256 hook tokens.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	ttl           time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer; a non-positive TTL falls back to one hour.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, ErrMissingAudience
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// IssueHookToken produces a signed token for the subject and its expiry time.
func (i *TokenIssuer) IssueHookToken(_ context.Context, subject string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, ErrMissingSubject
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	claims := HookClaims{
		Scope: ScopeContentHooks,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken checks signature, issuer, audience, expiry and scope and
// returns the claims.
func (i *TokenIssuer) ValidateToken(tokenString string) (HookClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return HookClaims{}, ErrMissingToken
	}

	claims := &HookClaims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return HookClaims{}, ErrExpiredToken
		}
		return HookClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid || claims.Scope != ScopeContentHooks {
		return HookClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return HookClaims{}, ErrMissingSubject
	}
	return *claims, nil
}

// ValidateRequest validates the bearer token of the Authorization header.
func (i *TokenIssuer) ValidateRequest(r *http.Request) (HookClaims, error) {
	if r == nil {
		return HookClaims{}, ErrMissingToken
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return HookClaims{}, ErrMissingToken
	}
	return i.ValidateToken(header[len(bearerPrefix):])
}
