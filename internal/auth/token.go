package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer   = "globalbangla"
	defaultTokenTTL = 7 * 24 * time.Hour
	allowedSkew     = 5 * time.Second
)

var errMissingSecret = errors.New("auth: token secret is not configured")

// Claims represents JWT claims carried by access tokens.
type Claims struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenMechanism issues and verifies HS256 signed tokens. It keeps no state.
type TokenMechanism struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures TokenMechanism.
type TokenOption func(*TokenMechanism)

// WithIssuer sets the iss claim written and required by the mechanism.
func WithIssuer(issuer string) TokenOption {
	return func(m *TokenMechanism) {
		if strings.TrimSpace(issuer) != "" {
			m.issuer = strings.TrimSpace(issuer)
		}
	}
}

// WithTokenTTL sets token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(m *TokenMechanism) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithTokenClock overrides the time source.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(m *TokenMechanism) {
		if now != nil {
			m.now = now
		}
	}
}

// NewTokenMechanism constructs the JWT mechanism.
func NewTokenMechanism(secret []byte, opts ...TokenOption) (*TokenMechanism, error) {
	if len(secret) == 0 {
		return nil, errMissingSecret
	}
	m := &TokenMechanism{
		secret: append([]byte(nil), secret...),
		issuer: defaultIssuer,
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

var _ Mechanism = (*TokenMechanism)(nil)

// TTL returns the configured token lifetime.
func (m *TokenMechanism) TTL() time.Duration { return m.ttl }

// Issue signs a token for p.
func (m *TokenMechanism) Issue(_ context.Context, p Principal) (Credential, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Credential{}, errors.New("auth: principal id is required")
	}
	if !p.Role.Valid() {
		return Credential{}, fmt.Errorf("auth: cannot issue token for role %s", p.Role)
	}
	now := m.now().UTC()
	exp := now.Add(m.ttl)
	claims := Claims{
		Role:  p.Role.String(),
		Name:  p.Name,
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return Credential{}, fmt.Errorf("sign token: %w", err)
	}
	return Credential{Token: signed, ExpiresAt: exp}, nil
}

// Verify checks signature, algorithm, issuer and time claims.
func (m *TokenMechanism) Verify(_ context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidCredential
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now), jwt.WithLeeway(allowedSkew))
	if err != nil {
		return Principal{}, ErrInvalidCredential
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrInvalidCredential
	}
	if err := m.validateClaims(claims); err != nil {
		return Principal{}, ErrInvalidCredential
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Principal{}, ErrInvalidCredential
	}
	return Principal{
		ID:    claims.Subject,
		Role:  role,
		Name:  claims.Name,
		Email: claims.Email,
	}, nil
}

// Revoke is a no-op: signed tokens expire on their own.
func (m *TokenMechanism) Revoke(context.Context, string) error { return nil }

func (m *TokenMechanism) validateClaims(claims *Claims) error {
	if claims.Issuer != m.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := m.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.IssuedAt.Time.After(now.Add(allowedSkew)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
