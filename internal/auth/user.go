package auth

import (
	"context"
	"strings"
	"time"
)

// User is a stored account.
type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Role            Role      `json:"role"`
	School          string    `json:"school,omitempty"`
	AffiliateSchool string    `json:"affiliate_school,omitempty"`
	ProfilePicture  string    `json:"profile_picture,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Principal projects the user onto the identity carried by credentials.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, Name: u.Name, Email: u.Email}
}

// ProfilePatch is a partial profile update; nil fields keep their value.
type ProfilePatch struct {
	Name            *string
	School          *string
	AffiliateSchool *string
}

// PasswordReset is a pending reset request. Only the token hash is stored.
type PasswordReset struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	// CreateUserWithinLimit inserts u only while fewer than limit users share its role.
	CreateUserWithinLimit(ctx context.Context, u *User, limit int) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsersByRole(ctx context.Context, role Role) ([]*User, error)
	CountUsersByRole(ctx context.Context, role Role) (int, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) error
	SetProfilePicture(ctx context.Context, userID, path string) error
}

// ResetStore persists password reset requests, one per user.
type ResetStore interface {
	UpsertReset(ctx context.Context, r PasswordReset) error
	// FindReset returns the unexpired reset with tokenHash or ErrInvalidResetToken.
	FindReset(ctx context.Context, tokenHash string, now time.Time) (PasswordReset, error)
	DeleteResets(ctx context.Context, userID string) error
}

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
