package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"net/mail"
	"strings"
	"time"

	"globalbangla.org/internal/ids"
	gbmail "globalbangla.org/internal/mail"
)

const (
	defaultMaxAdmins = 5
	defaultResetTTL  = 30 * time.Minute
	resetTokenBytes  = 32
)

// SignupInput carries a student registration.
type SignupInput struct {
	Name            string
	Email           string
	Password        string
	School          string
	AffiliateSchool string
}

// AdminInput carries an invite-gated admin registration.
type AdminInput struct {
	Name       string
	Email      string
	Password   string
	InviteCode string
}

// Accounts implements registration, login, profile and password reset flows.
type Accounts struct {
	users      UserStore
	resets     ResetStore
	mailer     gbmail.Mailer
	inviteCode string
	maxAdmins  int
	resetTTL   time.Duration
	baseURL    string
	now        func() time.Time
}

// AccountsOption configures Accounts.
type AccountsOption func(*Accounts)

func WithInviteCode(code string) AccountsOption {
	return func(a *Accounts) { a.inviteCode = strings.TrimSpace(code) }
}

func WithMaxAdmins(n int) AccountsOption {
	return func(a *Accounts) {
		if n > 0 {
			a.maxAdmins = n
		}
	}
}

func WithResetTTL(ttl time.Duration) AccountsOption {
	return func(a *Accounts) {
		if ttl > 0 {
			a.resetTTL = ttl
		}
	}
}

// WithBaseURL sets the site origin used in reset links.
func WithBaseURL(u string) AccountsOption {
	return func(a *Accounts) { a.baseURL = strings.TrimRight(u, "/") }
}

func WithClock(now func() time.Time) AccountsOption {
	return func(a *Accounts) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAccounts wires the account service.
func NewAccounts(users UserStore, resets ResetStore, mailer gbmail.Mailer, opts ...AccountsOption) *Accounts {
	a := &Accounts{
		users:     users,
		resets:    resets,
		mailer:    mailer,
		maxAdmins: defaultMaxAdmins,
		resetTTL:  defaultResetTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.mailer == nil {
		a.mailer = gbmail.Console{}
	}
	return a
}

// Signup registers a student account.
func (a *Accounts) Signup(ctx context.Context, in SignupInput) (*User, error) {
	name := strings.TrimSpace(in.Name)
	email := NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:              ids.New(),
		Name:            name,
		Email:           email,
		PasswordHash:    hash,
		Role:            RoleStudent,
		School:          strings.TrimSpace(in.School),
		AffiliateSchool: strings.TrimSpace(in.AffiliateSchool),
		CreatedAt:       a.now().UTC(),
	}
	if err := a.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks credentials for either role. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (a *Accounts) Login(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	u, err := a.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// CreateAdmin registers an admin when the invite code matches and the admin cap
// has not been reached.
func (a *Accounts) CreateAdmin(ctx context.Context, in AdminInput) (*User, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" || in.InviteCode == "" {
		return nil, fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}
	if a.inviteCode == "" || subtle.ConstantTimeCompare([]byte(in.InviteCode), []byte(a.inviteCode)) != 1 {
		return nil, ErrInvalidInviteCode
	}
	return a.BootstrapAdmin(ctx, in.Name, in.Email, in.Password)
}

// BootstrapAdmin creates an admin without an invite code. Used by the operator CLI.
func (a *Accounts) BootstrapAdmin(ctx context.Context, name, email, password string) (*User, error) {
	if strings.TrimSpace(name) == "" || password == "" {
		return nil, fmt.Errorf("%w: name and password are required", ErrInvalidInput)
	}
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           ids.New(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         RoleAdmin,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.users.CreateUserWithinLimit(ctx, u, a.maxAdmins); err != nil {
		return nil, err
	}
	return u, nil
}

// RequestPasswordReset mails a reset link to the account with email and role.
func (a *Accounts) RequestPasswordReset(ctx context.Context, email string, role Role) error {
	email = NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	u, err := a.users.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.Role != role {
		return ErrUserNotFound
	}

	token, err := newResetToken()
	if err != nil {
		return err
	}
	if err := a.resets.UpsertReset(ctx, PasswordReset{
		UserID:    u.ID,
		TokenHash: hashResetToken(token),
		ExpiresAt: a.now().UTC().Add(a.resetTTL),
	}); err != nil {
		return err
	}
	return a.mailer.Send(ctx, a.resetMessage(u, role, token))
}

// ResetPassword consumes a reset token and sets a new password.
func (a *Accounts) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" || password == "" {
		return fmt.Errorf("%w: token and new password are required", ErrInvalidInput)
	}
	reset, err := a.resets.FindReset(ctx, hashResetToken(token), a.now().UTC())
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := a.users.UpdatePassword(ctx, reset.UserID, hash); err != nil {
		return err
	}
	return a.resets.DeleteResets(ctx, reset.UserID)
}

// Profile returns the stored account.
func (a *Accounts) Profile(ctx context.Context, userID string) (*User, error) {
	return a.users.FindUser(ctx, userID)
}

// UpdateProfile coalesces the patch onto the stored profile. Empty strings are
// treated as absent.
func (a *Accounts) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) error {
	patch.Name = nonEmpty(patch.Name)
	patch.School = nonEmpty(patch.School)
	patch.AffiliateSchool = nonEmpty(patch.AffiliateSchool)
	return a.users.UpdateProfile(ctx, userID, patch)
}

// SetProfilePicture records the stored path of an uploaded picture.
func (a *Accounts) SetProfilePicture(ctx context.Context, userID, path string) error {
	return a.users.SetProfilePicture(ctx, userID, path)
}

// Students lists student accounts, newest first.
func (a *Accounts) Students(ctx context.Context) ([]*User, error) {
	return a.users.ListUsersByRole(ctx, RoleStudent)
}

// Admins lists admin accounts, newest first.
func (a *Accounts) Admins(ctx context.Context) ([]*User, error) {
	return a.users.ListUsersByRole(ctx, RoleAdmin)
}

// CountStudents returns the number of student accounts.
func (a *Accounts) CountStudents(ctx context.Context) (int, error) {
	return a.users.CountUsersByRole(ctx, RoleStudent)
}

func (a *Accounts) resetMessage(u *User, role Role, token string) gbmail.Message {
	site, subject, intro := "user-site", "Global Bangla Password Reset",
		"Use the link below to reset your password. It expires in 30 minutes."
	if role == RoleAdmin {
		site, subject, intro = "admin-site", "Global Bangla Admin Password Reset",
			"Reset your admin password within 30 minutes using the link below:"
	}
	link := fmt.Sprintf("%s/%s/reset.html?token=%s", a.baseURL, site, token)
	body := fmt.Sprintf("<p>Hello %s,</p><p>%s</p><p><a href=\"%s\">%s</a></p>",
		html.EscapeString(u.Name), intro, link, link)
	return gbmail.Message{
		To:      mail.Address{Name: u.Name, Address: u.Email},
		Subject: subject,
		HTML:    body,
		Text:    intro + "\n" + link,
	}
}

func newResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
