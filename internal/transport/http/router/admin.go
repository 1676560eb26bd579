package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tour-booking-api/internal/core/server"
	"tour-booking-api/internal/transport/http/ez"
	mdw "tour-booking-api/internal/transport/http/middleware"
)

// NewAdminEngine 管理端 v1（统一要求 admin 角色）
func NewAdminEngine(d Deps, mods ...any) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := server.NewRouter(d.chain(false)...)
	r.NoRoute(notFound)

	admin := r.Group("/admin/v1",
		mdw.Protect(d.Auth, d.Log),
		mdw.Authorize(d.Policy, ResAdmin, ActAccess),
	)
	NewRegistry(mods...).MountAllAdmin(ez.New(admin, d.Log, d.Policy))
	return r
}
