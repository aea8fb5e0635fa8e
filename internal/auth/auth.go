// Package auth holds the credential primitives: password digests, signed
// session tokens and request-scoped identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer = "accountd"
	// DefaultTokenTTL keeps sessions alive for roughly a year.
	DefaultTokenTTL = 365 * 24 * time.Hour
	clockSkew       = 5 * time.Second
)

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")

	errMissingSecret = errors.New("auth secret is not configured")
)

// Claims are the JWT claims of a session token. Subject is the username;
// AccountID pins the token to the account that held it when minted.
type Claims struct {
	jwt.RegisteredClaims
	AccountID     int64 `json:"uid"`
	IssuedAtMilli int64 `json:"iat_ms,omitempty"`
}

// Identity returns the username the token was issued to.
func (c *Claims) Identity() string { return c.Subject }

// IssuedBefore reports whether the token predates the epoch-millisecond ts.
// A zero ts never matches.
func (c *Claims) IssuedBefore(ts int64) bool {
	if ts == 0 {
		return false
	}
	iat := c.IssuedAtMilli
	if iat == 0 {
		if c.IssuedAt == nil {
			return false
		}
		iat = c.IssuedAt.UnixMilli()
	}
	return iat < ts
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	name   string
	now    func() time.Time
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithIssuerName overrides the iss claim.
func WithIssuerName(name string) Option {
	return func(i *Issuer) {
		if name = strings.TrimSpace(name); name != "" {
			i.name = name
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer returns an Issuer signing with secret. A non-positive ttl uses
// DefaultTokenTTL.
func NewIssuer(secret string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	i := &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		name:   defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the lifetime of minted tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Mint signs a session token bound to accountID under identity.
func (i *Issuer) Mint(accountID int64, identity string) (string, time.Time, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", time.Time{}, errors.New("identity is required")
	}
	if accountID <= 0 {
		return "", time.Time{}, errors.New("account id is required")
	}
	now := i.now().UTC()
	expires := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.name,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		AccountID:     accountID,
		IssuedAtMilli: now.UnixMilli(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies the signature and required claims of token.
func (i *Issuer) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithLeeway(clockSkew))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := i.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) validateClaims(claims *Claims) error {
	if claims.Issuer != i.name {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.AccountID <= 0 {
		return errors.New("account id missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	if claims.IssuedAt.Time.After(i.now().Add(clockSkew)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
