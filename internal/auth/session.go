package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"globalbangla.org/internal/ids"
)

const sessionKeyPrefix = "gb:session:"

// SessionConfig holds Redis session settings.
type SessionConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	TTL          time.Duration
}

// DefaultSessionConfig returns defaults matching the token lifetime.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		URL:          "redis://localhost:6379/0",
		PoolSize:     10,
		MinIdleConns: 2,
		TTL:          defaultTokenTTL,
	}
}

// DialRedis opens and pings a Redis client.
func DialRedis(ctx context.Context, cfg SessionConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

type sessionRecord struct {
	PrincipalID string    `json:"principal_id"`
	Role        string    `json:"role"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionMechanism keeps server-side sessions in Redis keyed by an opaque id.
type SessionMechanism struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionMechanism wraps an existing client.
func NewSessionMechanism(client *redis.Client, ttl time.Duration) *SessionMechanism {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &SessionMechanism{client: client, ttl: ttl, now: time.Now}
}

var _ Mechanism = (*SessionMechanism)(nil)

func sessionKey(id string) string { return sessionKeyPrefix + id }

// Issue stores a new session for p.
func (m *SessionMechanism) Issue(ctx context.Context, p Principal) (Credential, error) {
	if strings.TrimSpace(p.ID) == "" || !p.Role.Valid() {
		return Credential{}, errors.New("auth: session requires principal id and role")
	}
	now := m.now().UTC()
	data, err := json.Marshal(sessionRecord{
		PrincipalID: p.ID,
		Role:        p.Role.String(),
		Name:        p.Name,
		Email:       p.Email,
		CreatedAt:   now,
	})
	if err != nil {
		return Credential{}, err
	}
	id := ids.New()
	if err := m.client.Set(ctx, sessionKey(id), data, m.ttl).Err(); err != nil {
		return Credential{}, fmt.Errorf("store session: %w", err)
	}
	return Credential{Token: id, ExpiresAt: now.Add(m.ttl)}, nil
}

// Verify performs a single Redis read.
func (m *SessionMechanism) Verify(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Principal{}, ErrUnauthenticated
	}
	if _, ok := ids.Time(credential); !ok {
		return Principal{}, ErrInvalidCredential
	}
	data, err := m.client.Get(ctx, sessionKey(credential)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Principal{}, ErrInvalidCredential
		}
		return Principal{}, fmt.Errorf("load session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Principal{}, ErrInvalidCredential
	}
	role, err := ParseRole(rec.Role)
	if err != nil || rec.PrincipalID == "" {
		return Principal{}, ErrInvalidCredential
	}
	return Principal{ID: rec.PrincipalID, Role: role, Name: rec.Name, Email: rec.Email}, nil
}

// Revoke deletes the session.
func (m *SessionMechanism) Revoke(ctx context.Context, credential string) error {
	if strings.TrimSpace(credential) == "" {
		return nil
	}
	return m.client.Del(ctx, sessionKey(credential)).Err()
}
