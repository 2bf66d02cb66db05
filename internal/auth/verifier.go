package auth

import (
	"context"
	"time"
)

// Credential is a bearer artifact handed to the client.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// CredentialVerifier resolves a bearer credential into a Principal. Missing
// credentials yield ErrUnauthenticated; anything unverifiable yields
// ErrInvalidCredential. Other errors mean the backing store is unavailable.
type CredentialVerifier interface {
	Verify(ctx context.Context, credential string) (Principal, error)
}

// Mechanism issues, verifies and revokes credentials. Exactly one mechanism
// is authoritative for a running server.
type Mechanism interface {
	CredentialVerifier
	Issue(ctx context.Context, p Principal) (Credential, error)
	Revoke(ctx context.Context, credential string) error
}
