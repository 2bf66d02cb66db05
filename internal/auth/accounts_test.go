package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	gbmail "globalbangla.org/internal/mail"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []gbmail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg gbmail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last() gbmail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

var resetLink = regexp.MustCompile(`https://gb\.test/(user|admin)-site/reset\.html\?token=([0-9a-f]{64})`)

type AccountsSuite struct {
	suite.Suite
	store    *InMemory
	mailer   *recordingMailer
	now      time.Time
	accounts *Accounts
	ctx      context.Context
}

func TestAccountsSuite(t *testing.T) {
	suite.Run(t, new(AccountsSuite))
}

func (s *AccountsSuite) SetupTest() {
	s.store = NewInMemory()
	s.mailer = &recordingMailer{}
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.accounts = NewAccounts(s.store, s.store, s.mailer,
		WithInviteCode("GB-INVITE"),
		WithMaxAdmins(2),
		WithBaseURL("https://gb.test/"),
		WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *AccountsSuite) signup(email string) *User {
	u, err := s.accounts.Signup(s.ctx, SignupInput{Name: "Rina", Email: email, Password: "secret1", School: "Dhaka High"})
	s.Require().NoError(err)
	return u
}

func (s *AccountsSuite) TestSignupCreatesStudent() {
	u := s.signup("  Rina@Example.com ")
	s.Equal(RoleStudent, u.Role)
	s.Equal("rina@example.com", u.Email)
	s.NotEqual("secret1", u.PasswordHash)

	stored, err := s.store.FindUserByEmail(s.ctx, "rina@example.com")
	s.Require().NoError(err)
	s.Equal(u.ID, stored.ID)
	s.Equal("Dhaka High", stored.School)
}

func (s *AccountsSuite) TestSignupDuplicateEmail() {
	s.signup("rina@example.com")
	_, err := s.accounts.Signup(s.ctx, SignupInput{Name: "Other", Email: "RINA@example.com", Password: "secret2"})
	s.True(errors.Is(err, ErrEmailTaken))
}

func (s *AccountsSuite) TestSignupValidation() {
	_, err := s.accounts.Signup(s.ctx, SignupInput{Name: "", Email: "a@b.c", Password: "secret1"})
	s.True(errors.Is(err, ErrInvalidInput))
	_, err = s.accounts.Signup(s.ctx, SignupInput{Name: "A", Email: "nope", Password: "secret1"})
	s.True(errors.Is(err, ErrInvalidInput))
	_, err = s.accounts.Signup(s.ctx, SignupInput{Name: "A", Email: "a@b.c", Password: "123"})
	s.True(errors.Is(err, ErrInvalidInput))
}

func (s *AccountsSuite) TestLogin() {
	u := s.signup("rina@example.com")

	got, err := s.accounts.Login(s.ctx, "RINA@example.com", "secret1")
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)

	_, err = s.accounts.Login(s.ctx, "rina@example.com", "wrong-password")
	s.True(errors.Is(err, ErrInvalidCredentials))
	_, err = s.accounts.Login(s.ctx, "ghost@example.com", "secret1")
	s.True(errors.Is(err, ErrInvalidCredentials))
}

func (s *AccountsSuite) TestCreateAdminRequiresInvite() {
	_, err := s.accounts.CreateAdmin(s.ctx, AdminInput{Name: "Asha", Email: "asha@example.com", Password: "secret1", InviteCode: "wrong"})
	s.True(errors.Is(err, ErrInvalidInviteCode))

	admin, err := s.accounts.CreateAdmin(s.ctx, AdminInput{Name: "Asha", Email: "asha@example.com", Password: "secret1", InviteCode: "GB-INVITE"})
	s.Require().NoError(err)
	s.Equal(RoleAdmin, admin.Role)
}

func (s *AccountsSuite) TestCreateAdminWithoutConfiguredInviteIsRejected() {
	accounts := NewAccounts(s.store, s.store, s.mailer)
	_, err := accounts.CreateAdmin(s.ctx, AdminInput{Name: "Asha", Email: "asha@example.com", Password: "secret1", InviteCode: "anything"})
	s.True(errors.Is(err, ErrInvalidInviteCode))
}

func (s *AccountsSuite) TestCreateAdminLimit() {
	for _, email := range []string{"a1@example.com", "a2@example.com"} {
		_, err := s.accounts.CreateAdmin(s.ctx, AdminInput{Name: "A", Email: email, Password: "secret1", InviteCode: "GB-INVITE"})
		s.Require().NoError(err)
	}
	_, err := s.accounts.CreateAdmin(s.ctx, AdminInput{Name: "A", Email: "a3@example.com", Password: "secret1", InviteCode: "GB-INVITE"})
	s.True(errors.Is(err, ErrAdminLimit))

	admins, err := s.accounts.Admins(s.ctx)
	s.Require().NoError(err)
	s.Len(admins, 2)
}

func (s *AccountsSuite) TestCreateAdminLimitUnderConcurrency() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := string(rune('a'+i)) + "@example.com"
			if _, err := s.accounts.BootstrapAdmin(s.ctx, "A", email, "secret1"); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	s.Equal(2, created)
}

func (s *AccountsSuite) TestBootstrapAdminRequiresNameAndPassword() {
	for _, tc := range []struct{ name, password string }{
		{"", "secret1"},
		{"   ", "secret1"},
		{"Asha", ""},
	} {
		_, err := s.accounts.BootstrapAdmin(s.ctx, tc.name, "asha@example.com", tc.password)
		s.True(errors.Is(err, ErrInvalidInput), "name %q password %q: %v", tc.name, tc.password, err)
	}
	_, err := s.accounts.BootstrapAdmin(s.ctx, "Asha", "asha@example.com", "secret1")
	s.Require().NoError(err)
}

func (s *AccountsSuite) TestPasswordResetFlow() {
	u := s.signup("rina@example.com")

	s.Require().NoError(s.accounts.RequestPasswordReset(s.ctx, "rina@example.com", RoleStudent))
	msg := s.mailer.last()
	s.Equal("rina@example.com", msg.To.Address)
	m := resetLink.FindStringSubmatch(msg.HTML)
	s.Require().Len(m, 3)
	s.Equal("user", m[1])
	token := m[2]

	s.Require().NoError(s.accounts.ResetPassword(s.ctx, token, "newpass1"))

	_, err := s.accounts.Login(s.ctx, "rina@example.com", "secret1")
	s.True(errors.Is(err, ErrInvalidCredentials))
	got, err := s.accounts.Login(s.ctx, "rina@example.com", "newpass1")
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)

	err = s.accounts.ResetPassword(s.ctx, token, "another1")
	s.True(errors.Is(err, ErrInvalidResetToken))
}

func (s *AccountsSuite) TestPasswordResetStoresOnlyHash() {
	u := s.signup("rina@example.com")
	s.Require().NoError(s.accounts.RequestPasswordReset(s.ctx, "rina@example.com", RoleStudent))
	token := resetLink.FindStringSubmatch(s.mailer.last().HTML)[2]

	stored := s.store.resets[u.ID]
	s.NotEqual(token, stored.TokenHash)
	s.Equal(hashResetToken(token), stored.TokenHash)
	s.Equal(s.now.Add(30*time.Minute), stored.ExpiresAt)
}

func (s *AccountsSuite) TestPasswordResetExpires() {
	s.signup("rina@example.com")
	s.Require().NoError(s.accounts.RequestPasswordReset(s.ctx, "rina@example.com", RoleStudent))
	token := resetLink.FindStringSubmatch(s.mailer.last().HTML)[2]

	s.now = s.now.Add(31 * time.Minute)
	err := s.accounts.ResetPassword(s.ctx, token, "newpass1")
	s.True(errors.Is(err, ErrInvalidResetToken))
}

func (s *AccountsSuite) TestPasswordResetReplacesPriorToken() {
	s.signup("rina@example.com")
	s.Require().NoError(s.accounts.RequestPasswordReset(s.ctx, "rina@example.com", RoleStudent))
	first := resetLink.FindStringSubmatch(s.mailer.last().HTML)[2]
	s.Require().NoError(s.accounts.RequestPasswordReset(s.ctx, "rina@example.com", RoleStudent))

	err := s.accounts.ResetPassword(s.ctx, first, "newpass1")
	s.True(errors.Is(err, ErrInvalidResetToken))
}

func (s *AccountsSuite) TestAdminResetUsesAdminSite() {
	_, err := s.accounts.BootstrapAdmin(s.ctx, "Asha", "asha@example.com", "secret1")
	s.Require().NoError(err)

	err = s.accounts.RequestPasswordReset(s.ctx, "asha@example.com", RoleStudent)
	s.True(errors.Is(err, ErrUserNotFound))

	s.Require().NoError(s.accounts.RequestPasswordReset(s.ctx, "asha@example.com", RoleAdmin))
	m := resetLink.FindStringSubmatch(s.mailer.last().HTML)
	s.Require().Len(m, 3)
	s.Equal("admin", m[1])
}

func (s *AccountsSuite) TestUpdateProfileCoalesces() {
	u := s.signup("rina@example.com")
	blank, school := " ", "Chittagong College"
	s.Require().NoError(s.accounts.UpdateProfile(s.ctx, u.ID, ProfilePatch{Name: &blank, School: &school}))

	got, err := s.accounts.Profile(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("Rina", got.Name)
	s.Equal("Chittagong College", got.School)

	s.Require().NoError(s.accounts.SetProfilePicture(s.ctx, u.ID, "/uploads/profiles/profiles-x.png"))
	got, _ = s.accounts.Profile(s.ctx, u.ID)
	s.Equal("/uploads/profiles/profiles-x.png", got.ProfilePicture)
}

func (s *AccountsSuite) TestStudentsNewestFirst() {
	first := s.signup("one@example.com")
	s.now = s.now.Add(time.Minute)
	second := s.signup("two@example.com")

	students, err := s.accounts.Students(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(students, 2)
	s.Equal(second.ID, students[0].ID)
	s.Equal(first.ID, students[1].ID)

	n, err := s.accounts.CountStudents(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}
