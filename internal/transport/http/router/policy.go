package router

import (
	"tour-booking-api/internal/core/auth"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/transport/http/handler"
)

// 管理端整体准入
const (
	ResAdmin  = "admin"
	ActAccess = "access"
)

// DefaultPolicy 资源/动作 → 角色；评论的“只能改自己的”在服务层判断
func DefaultPolicy() *auth.Policy {
	staff := []string{domain.RoleAdmin, domain.RoleLeadGuide}
	return auth.NewPolicy().
		Requires(handler.ResTours, "create", staff...).
		Requires(handler.ResTours, "update", staff...).
		Requires(handler.ResTours, "delete", staff...).
		Requires(handler.ResTours, "monthly-plan", domain.RoleAdmin, domain.RoleLeadGuide, domain.RoleGuide).
		Requires(handler.ResReviews, "create", domain.RoleUser).
		Requires(handler.ResReviews, "update", domain.RoleUser, domain.RoleAdmin).
		Requires(handler.ResReviews, "delete", domain.RoleUser, domain.RoleAdmin).
		Requires(handler.ResUsers, "list", domain.RoleAdmin).
		Requires(handler.ResUsers, "read", domain.RoleAdmin).
		Requires(handler.ResUsers, "update", domain.RoleAdmin).
		Requires(handler.ResUsers, "delete", domain.RoleAdmin).
		Requires(ResAdmin, ActAccess, domain.RoleAdmin)
}
