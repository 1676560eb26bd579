package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/core/auth"
	"tour-booking-api/internal/domain"
	resp "tour-booking-api/internal/transport/http/response"
)

const (
	KeyUser    = "user"
	CookieName = "jwt"

	msgForbidden = "You do not have permission to perform this action"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// TokenFrom 优先 Authorization: Bearer，其次 jwt cookie
func TokenFrom(c *gin.Context) string {
	if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
	}
	if ck, err := c.Cookie(CookieName); err == nil {
		return ck
	}
	return ""
}

// Protect 要求登录；通过后当前用户放进 context
func Protect(a Authenticator, l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := a.Authenticate(c.Request.Context(), TokenFrom(c))
		if err != nil {
			resp.Fail(c, l, err)
			return
		}
		c.Set(KeyUser, u)
		c.Next()
	}
}

// Authorize 按策略表检查当前用户角色，必须挂在 Protect 之后
func Authorize(p *auth.Policy, resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Check(c, p, resource, action); err != nil {
			resp.Fail(c, nil, err)
			return
		}
		c.Next()
	}
}

// Check 单次策略判定，供中间件和 action 注册共用
func Check(c *gin.Context, p *auth.Policy, resource, action string) error {
	u := CurrentUser(c)
	if u == nil {
		return apperr.Unauthorized("You are not logged in! Please log in to get access.")
	}
	if p != nil && !p.Allowed(resource, action, u.Role) {
		return apperr.Forbidden(msgForbidden)
	}
	return nil
}

func CurrentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(KeyUser)
	if !ok {
		return nil
	}
	u, _ := v.(*domain.User)
	return u
}
