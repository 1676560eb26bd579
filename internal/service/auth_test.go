package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/core/auth"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/repo/memory"
)

// plainHasher 测试里跳过 bcrypt
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "h:" + pw, nil }
func (plainHasher) Check(pw, hash string) bool     { return hash == "h:"+pw }

type captureSender struct {
	to, body string
	err      error
}

func (c *captureSender) Send(_ context.Context, to, _, body string) error {
	c.to, c.body = to, body
	return c.err
}

// token 从邮件正文里取出重置令牌
func (c *captureSender) token() string {
	const marker = "/resetPassword/"
	i := strings.Index(c.body, marker)
	if i < 0 {
		return ""
	}
	rest := c.body[i+len(marker):]
	if j := strings.IndexAny(rest, ".\n "); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func newAuth(t *testing.T) (*AuthService, *memory.Users, *captureSender) {
	t.Helper()
	users := memory.NewUsers()
	mail := &captureSender{}
	jwter := auth.NewJWTer("test-secret-test-secret-test-secret", "tour-booking-api", time.Hour)
	return NewAuthService(users, jwter, plainHasher{}, mail, nil), users, mail
}

func signup(t *testing.T, s *AuthService, email string) (*domain.User, string) {
	t.Helper()
	u, tok, err := s.Signup(context.Background(), domain.Signup{
		Name:            "Jonas",
		Email:           email,
		Password:        "pass1234",
		PasswordConfirm: "pass1234",
	})
	require.NoError(t, err)
	return u, tok
}

func TestSignupAndAuthenticate(t *testing.T) {
	s, _, _ := newAuth(t)
	u, tok := signup(t, s, "  Jonas@Example.io ")
	assert.Equal(t, "jonas@example.io", u.Email)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.Equal(t, "h:pass1234", u.Password)

	me, err := s.Authenticate(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)

	_, err = s.Authenticate(context.Background(), "")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = s.Authenticate(context.Background(), tok+"x")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestSignupRejectsMismatchAndDuplicate(t *testing.T) {
	s, _, _ := newAuth(t)
	ctx := context.Background()
	_, _, err := s.Signup(ctx, domain.Signup{Name: "A", Email: "a@b.io", Password: "pass1234", PasswordConfirm: "pass12345"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	signup(t, s, "dup@example.io")
	_, _, err = s.Signup(ctx, domain.Signup{Name: "B", Email: "DUP@example.io", Password: "pass1234", PasswordConfirm: "pass1234"})
	assert.Equal(t, apperr.KindDuplicate, apperr.KindOf(err))
}

func TestLogin(t *testing.T) {
	s, _, _ := newAuth(t)
	ctx := context.Background()
	signup(t, s, "login@example.io")

	_, tok, err := s.Login(ctx, domain.Login{Email: "login@example.io", Password: "pass1234"})
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	_, _, err = s.Login(ctx, domain.Login{Email: "login@example.io", Password: "wrong-pass"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, _, err = s.Login(ctx, domain.Login{Email: "ghost@example.io", Password: "pass1234"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, _, err = s.Login(ctx, domain.Login{Email: "login@example.io"})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestAuthenticateRejectsTokenOlderThanPasswordChange(t *testing.T) {
	s, _, _ := newAuth(t)
	ctx := context.Background()
	u, tok := signup(t, s, "change@example.io")

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, _, err := s.UpdatePassword(ctx, u, domain.PasswordChange{
		PasswordCurrent: "pass1234",
		Password:        "newpass123",
		PasswordConfirm: "newpass123",
	})
	require.NoError(t, err)

	_, err = s.Authenticate(ctx, tok)
	require.Error(t, err)
	assert.Equal(t, msgPasswordChanged, err.(*apperr.Error).Msg)
}

func TestUpdatePasswordChecksCurrent(t *testing.T) {
	s, _, _ := newAuth(t)
	ctx := context.Background()
	u, _ := signup(t, s, "current@example.io")

	_, _, err := s.UpdatePassword(ctx, u, domain.PasswordChange{
		PasswordCurrent: "nope",
		Password:        "newpass123",
		PasswordConfirm: "newpass123",
	})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, tok, err := s.UpdatePassword(ctx, u, domain.PasswordChange{
		PasswordCurrent: "pass1234",
		Password:        "newpass123",
		PasswordConfirm: "newpass123",
	})
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, tok)
	assert.NoError(t, err)

	_, _, err = s.Login(ctx, domain.Login{Email: "current@example.io", Password: "newpass123"})
	assert.NoError(t, err)
}

func TestForgotAndResetPassword(t *testing.T) {
	s, users, mail := newAuth(t)
	ctx := context.Background()
	u, _ := signup(t, s, "forgot@example.io")

	require.NoError(t, s.ForgotPassword(ctx, "forgot@example.io", "http://localhost:8080/"))
	assert.Equal(t, "forgot@example.io", mail.to)
	assert.Contains(t, mail.body, "http://localhost:8080/api/v1/users/resetPassword/")
	plain := mail.token()
	require.NotEmpty(t, plain)

	stored, err := users.FindByID(ctx, u.ID.Hex())
	require.NoError(t, err)
	assert.NotEqual(t, plain, stored.PasswordResetToken)

	_, _, err = s.ResetPassword(ctx, plain, domain.NewPassword{Password: "short", PasswordConfirm: "short"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, tok, err := s.ResetPassword(ctx, plain, domain.NewPassword{Password: "resetpass1", PasswordConfirm: "resetpass1"})
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	// 令牌只能用一次
	_, _, err = s.ResetPassword(ctx, plain, domain.NewPassword{Password: "resetpass2", PasswordConfirm: "resetpass2"})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	_, _, err = s.Login(ctx, domain.Login{Email: "forgot@example.io", Password: "resetpass1"})
	assert.NoError(t, err)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	s, _, mail := newAuth(t)
	ctx := context.Background()
	signup(t, s, "late@example.io")
	require.NoError(t, s.ForgotPassword(ctx, "late@example.io", "http://x"))

	s.now = func() time.Time { return time.Now().Add(ResetTokenTTL + time.Minute) }
	_, _, err := s.ResetPassword(ctx, mail.token(), domain.NewPassword{Password: "resetpass1", PasswordConfirm: "resetpass1"})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestForgotPasswordSendFailureClearsToken(t *testing.T) {
	s, users, mail := newAuth(t)
	ctx := context.Background()
	u, _ := signup(t, s, "nomail@example.io")
	mail.err = errors.New("smtp down")

	err := s.ForgotPassword(ctx, "nomail@example.io", "http://x")
	assert.Equal(t, apperr.KindUnexpected, apperr.KindOf(err))

	stored, err := users.FindByID(ctx, u.ID.Hex())
	require.NoError(t, err)
	assert.Empty(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)

	err = s.ForgotPassword(ctx, "ghost@example.io", "http://x")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeactivatedUserCannotAuthenticate(t *testing.T) {
	s, users, _ := newAuth(t)
	ctx := context.Background()
	u, tok := signup(t, s, "gone@example.io")

	require.NoError(t, NewUserService(users).DeleteMe(ctx, u))
	_, err := s.Authenticate(ctx, tok)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, _, err = s.Login(ctx, domain.Login{Email: "gone@example.io", Password: "pass1234"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestUpdateMe(t *testing.T) {
	s, users, _ := newAuth(t)
	ctx := context.Background()
	u, _ := signup(t, s, "me@example.io")
	svc := NewUserService(users)

	pw := "sneaky123"
	_, err := svc.UpdateMe(ctx, u, domain.ProfileUpdate{Password: &pw})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	name := "Jonas S"
	got, err := svc.UpdateMe(ctx, u, domain.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Jonas S", got.Name)
	assert.Equal(t, "h:pass1234", got.Password)
}

func TestUserListWithInactive(t *testing.T) {
	s, users, _ := newAuth(t)
	ctx := context.Background()
	signup(t, s, "one@example.io")
	two, _ := signup(t, s, "two@example.io")
	svc := NewUserService(users)

	banned, err := svc.Ban(ctx, two.ID.Hex())
	require.NoError(t, err)
	assert.False(t, banned.IsActive())

	active, _, err := svc.List(ctx, nil, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	all, _, err := svc.List(ctx, nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Get(ctx, two.ID.Hex())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
