package auth

import "errors"

var (
	// Guard failures.
	ErrUnauthenticated   = errors.New("auth: credential missing")
	ErrInvalidCredential = errors.New("auth: credential invalid or expired")
	ErrForbidden         = errors.New("auth: forbidden")

	// Account failures.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrInvalidInviteCode  = errors.New("auth: invalid invite code")
	ErrAdminLimit         = errors.New("auth: admin limit reached")
	ErrInvalidResetToken  = errors.New("auth: invalid or expired reset token")
	ErrInvalidInput       = errors.New("auth: invalid input")
)
