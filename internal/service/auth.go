package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/core/auth"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/notify"
	"tour-booking-api/pkg/utils"
)

const (
	msgNotLoggedIn     = "You are not logged in! Please log in to get access."
	msgBadCredentials  = "Incorrect email or password"
	msgUserGone        = "The user belonging to this token does no longer exist."
	msgPasswordChanged = "User recently changed password! Please log in again."

	ResetTokenTTL = 10 * time.Minute
)

// Hasher 密码哈希边界
type Hasher interface {
	Hash(pw string) (string, error)
	Check(pw, hash string) bool
}

type BcryptHasher struct{}

func (BcryptHasher) Hash(pw string) (string, error) { return utils.HashPassword(pw) }
func (BcryptHasher) Check(pw, hash string) bool     { return utils.CheckPassword(pw, hash) }

type AuthService struct {
	users  domain.UserRepository
	jwt    *auth.JWTer
	hasher Hasher
	mail   notify.Sender
	log    *zap.Logger
	now    func() time.Time
}

func NewAuthService(users domain.UserRepository, jwt *auth.JWTer, hasher Hasher, mail notify.Sender, l *zap.Logger) *AuthService {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	if mail == nil {
		mail = notify.LogSender{L: l}
	}
	return &AuthService{users: users, jwt: jwt, hasher: hasher, mail: mail, log: l, now: time.Now}
}

func (s *AuthService) issue(u *domain.User) (string, error) {
	tok, err := s.jwt.Issue(u.ID.Hex(), u.Role)
	if err != nil {
		return "", apperr.Internal("issue token failed", err)
	}
	return tok, nil
}

// Signup 角色固定为 user
func (s *AuthService) Signup(ctx context.Context, in domain.Signup) (*domain.User, string, error) {
	if err := in.Validate(); err != nil {
		return nil, "", err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", apperr.Internal("hash password failed", err)
	}
	u := &domain.User{
		Name:     in.Name,
		Email:    in.Email,
		Photo:    in.Photo,
		Role:     domain.RoleUser,
		Password: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, "", err
	}
	tok, err := s.issue(u)
	return u, tok, err
}

func (s *AuthService) Login(ctx context.Context, in domain.Login) (*domain.User, string, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, "", apperr.BadRequest("Please provide email and password!")
	}
	u, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, "", apperr.Unauthorized(msgBadCredentials)
		}
		return nil, "", err
	}
	if !u.IsActive() || !s.hasher.Check(in.Password, u.Password) {
		return nil, "", apperr.Unauthorized(msgBadCredentials)
	}
	tok, err := s.issue(u)
	return u, tok, err
}

// Authenticate 校验令牌并加载当前用户
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, apperr.Unauthorized(msgNotLoggedIn)
	}
	claims, err := s.jwt.Parse(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, claims.UID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindBadRequest) {
			return nil, apperr.Unauthorized(msgUserGone)
		}
		return nil, err
	}
	if !u.IsActive() {
		return nil, apperr.Unauthorized(msgUserGone)
	}
	if u.ChangedPasswordAfter(claims.IssuedTime()) {
		return nil, apperr.Unauthorized(msgPasswordChanged)
	}
	return u, nil
}

// ForgotPassword 生成一次性令牌并发邮件；发送失败时撤销令牌
func (s *AuthService) ForgotPassword(ctx context.Context, email, baseURL string) error {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound("There is no user with email address.")
		}
		return err
	}
	plain, digest, err := utils.NewResetToken()
	if err != nil {
		return apperr.Internal("generate reset token failed", err)
	}
	u.SetResetToken(digest, s.now().Add(ResetTokenTTL))
	if err := s.users.SaveCredentials(ctx, u); err != nil {
		return err
	}

	subject, body := notify.PasswordResetEmail(fmt.Sprintf("%s/api/v1/users/resetPassword/%s", strings.TrimRight(baseURL, "/"), plain))
	if err := s.mail.Send(ctx, u.Email, subject, body); err != nil {
		u.SetResetToken("", time.Time{})
		if e := s.users.SaveCredentials(ctx, u); e != nil {
			s.log.Error("clear reset token", zap.String("user", u.ID.Hex()), zap.Error(e))
		}
		return apperr.Internal("There was an error sending the email. Try again later!", err)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token string, in domain.NewPassword) (*domain.User, string, error) {
	now := s.now()
	u, err := s.users.FindByResetToken(ctx, utils.DigestToken(token), now)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, "", apperr.BadRequest("Token is invalid or has expired")
		}
		return nil, "", err
	}
	if err := in.Validate(); err != nil {
		return nil, "", err
	}
	if err := s.setPassword(ctx, u, in.Password, now); err != nil {
		return nil, "", err
	}
	tok, err := s.issue(u)
	return u, tok, err
}

// UpdatePassword 先验证当前密码，再校验新密码
func (s *AuthService) UpdatePassword(ctx context.Context, me *domain.User, in domain.PasswordChange) (*domain.User, string, error) {
	u, err := s.users.FindByID(ctx, me.ID.Hex())
	if err != nil {
		return nil, "", err
	}
	if !s.hasher.Check(in.PasswordCurrent, u.Password) {
		return nil, "", apperr.Unauthorized("Your current password is wrong.")
	}
	if err := in.Validate(); err != nil {
		return nil, "", err
	}
	if err := s.setPassword(ctx, u, in.Password, s.now()); err != nil {
		return nil, "", err
	}
	tok, err := s.issue(u)
	return u, tok, err
}

func (s *AuthService) setPassword(ctx context.Context, u *domain.User, pw string, now time.Time) error {
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return apperr.Internal("hash password failed", err)
	}
	u.SetPassword(hash, now)
	return s.users.SaveCredentials(ctx, u)
}
