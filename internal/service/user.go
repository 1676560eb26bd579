package service

import (
	"context"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
)

type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) List(ctx context.Context, p query.Params, withInactive bool) ([]domain.User, query.Spec, error) {
	spec, err := query.Build(p, domain.UserFields)
	if err != nil {
		return nil, spec, err
	}
	us, err := s.users.FindAll(ctx, spec, withInactive)
	return us, spec, err
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

// Update 管理员修改；密码相关字段不在 JSON 里，改不到
func (s *UserService) Update(ctx context.Context, id string, payload []byte) (*domain.User, error) {
	return s.users.Update(ctx, id, func(u *domain.User) error {
		return decodePatch(payload, u)
	})
}

// Delete 软删除
func (s *UserService) Delete(ctx context.Context, id string) error {
	_, err := s.users.Deactivate(ctx, id)
	return err
}

// Ban 管理端封禁，返回被停用的用户
func (s *UserService) Ban(ctx context.Context, id string) (*domain.User, error) {
	return s.users.Deactivate(ctx, id)
}

func (s *UserService) UpdateMe(ctx context.Context, me *domain.User, p domain.ProfileUpdate) (*domain.User, error) {
	if p.TouchesPassword() {
		return nil, apperr.BadRequest("This route is not for password updates. Please use /updateMyPassword.")
	}
	return s.users.Update(ctx, me.ID.Hex(), func(u *domain.User) error {
		p.ApplyTo(u)
		return nil
	})
}

func (s *UserService) DeleteMe(ctx context.Context, me *domain.User) error {
	_, err := s.users.Deactivate(ctx, me.ID.Hex())
	return err
}
