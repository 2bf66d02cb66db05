package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory implements UserStore and ResetStore for tests and local runs.
type InMemory struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
	resets  map[string]PasswordReset // userID -> reset
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		resets:  make(map[string]PasswordReset),
	}
}

var (
	_ UserStore  = (*InMemory)(nil)
	_ ResetStore = (*InMemory)(nil)
)

func (s *InMemory) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(u)
}

func (s *InMemory) CreateUserWithinLimit(_ context.Context, u *User, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countLocked(u.Role) >= limit {
		return ErrAdminLimit
	}
	return s.insertLocked(u)
}

func (s *InMemory) insertLocked(u *User) error {
	email := NormalizeEmail(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return ErrEmailTaken
	}
	cp := *u
	cp.Email = email
	s.users[cp.ID] = &cp
	s.byEmail[email] = cp.ID
	return nil
}

func (s *InMemory) countLocked(role Role) int {
	n := 0
	for _, u := range s.users {
		if u.Role == role {
			n++
		}
	}
	return n
}

func (s *InMemory) FindUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *InMemory) ListUsersByRole(_ context.Context, role Role) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, u := range s.users {
		if u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) CountUsersByRole(_ context.Context, role Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked(role), nil
}

func (s *InMemory) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *InMemory) UpdateProfile(_ context.Context, userID string, patch ProfilePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.School != nil {
		u.School = *patch.School
	}
	if patch.AffiliateSchool != nil {
		u.AffiliateSchool = *patch.AffiliateSchool
	}
	return nil
}

func (s *InMemory) SetProfilePicture(_ context.Context, userID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.ProfilePicture = path
	return nil
}

func (s *InMemory) UpsertReset(_ context.Context, r PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[r.UserID] = r
	return nil
}

func (s *InMemory) FindReset(_ context.Context, tokenHash string, now time.Time) (PasswordReset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.resets {
		if r.TokenHash == tokenHash && r.ExpiresAt.After(now) {
			return r, nil
		}
	}
	return PasswordReset{}, ErrInvalidResetToken
}

func (s *InMemory) DeleteResets(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resets, userID)
	return nil
}
