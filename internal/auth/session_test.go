package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type SessionSuite struct {
	suite.Suite
	mini   *miniredis.Miniredis
	client *redis.Client
	mech   *SessionMechanism
	ctx    context.Context
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	s.mech = NewSessionMechanism(s.client, time.Hour)
	s.ctx = context.Background()
}

func (s *SessionSuite) TearDownTest() {
	_ = s.client.Close()
	s.mini.Close()
}

func (s *SessionSuite) TestIssueAndVerify() {
	cred, err := s.mech.Issue(s.ctx, Principal{ID: "u1", Role: RoleStudent, Name: "Rina"})
	s.Require().NoError(err)
	s.NotEmpty(cred.Token)
	s.True(s.mini.Exists(sessionKey(cred.Token)))

	p, err := s.mech.Verify(s.ctx, cred.Token)
	s.Require().NoError(err)
	s.Equal("u1", p.ID)
	s.Equal(RoleStudent, p.Role)
	s.Equal("Rina", p.Name)
}

func (s *SessionSuite) TestVerifyEmptyIsUnauthenticated() {
	_, err := s.mech.Verify(s.ctx, "  ")
	s.True(errors.Is(err, ErrUnauthenticated))
}

func (s *SessionSuite) TestVerifyUnknownIsInvalid() {
	_, err := s.mech.Verify(s.ctx, "not-an-id")
	s.True(errors.Is(err, ErrInvalidCredential))

	_, err = s.mech.Verify(s.ctx, "01HZY3ZJ8Q4N3M2X7V6B5C4D3E")
	s.True(errors.Is(err, ErrInvalidCredential))
}

func (s *SessionSuite) TestSessionExpires() {
	cred, err := s.mech.Issue(s.ctx, Principal{ID: "a1", Role: RoleAdmin})
	s.Require().NoError(err)

	s.mini.FastForward(2 * time.Hour)

	_, err = s.mech.Verify(s.ctx, cred.Token)
	s.True(errors.Is(err, ErrInvalidCredential))
}

func (s *SessionSuite) TestRevoke() {
	cred, err := s.mech.Issue(s.ctx, Principal{ID: "a1", Role: RoleAdmin})
	s.Require().NoError(err)

	s.Require().NoError(s.mech.Revoke(s.ctx, cred.Token))
	_, err = s.mech.Verify(s.ctx, cred.Token)
	s.True(errors.Is(err, ErrInvalidCredential))
}

func (s *SessionSuite) TestStoreFailureIsNotInvalidCredential() {
	cred, err := s.mech.Issue(s.ctx, Principal{ID: "a1", Role: RoleAdmin})
	s.Require().NoError(err)

	s.mini.SetError("ERR store down")
	_, err = s.mech.Verify(s.ctx, cred.Token)
	s.Error(err)
	s.False(errors.Is(err, ErrInvalidCredential))
	s.False(errors.Is(err, ErrUnauthenticated))
}
