package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tour-booking-api/internal/core/auth"
	"tour-booking-api/internal/core/config"
	"tour-booking-api/internal/core/server"
	"tour-booking-api/internal/transport/http/ez"
	mdw "tour-booking-api/internal/transport/http/middleware"
	resp "tour-booking-api/internal/transport/http/response"
)

// Deps 两个 engine 共用的依赖
type Deps struct {
	Log    *zap.Logger
	HTTP   config.HTTP
	Auth   mdw.Authenticator
	Policy *auth.Policy
}

// limits 未配置的限额回落到默认值
func limits(h config.HTTP) config.HTTP {
	if h.RequestTimeoutSec <= 0 {
		h.RequestTimeoutSec = 10
	}
	if h.RateLimitRPS <= 0 {
		h.RateLimitRPS, h.RateLimitBurst = 200, 400
	}
	if h.RateLimitBurst <= 0 {
		h.RateLimitBurst = int(h.RateLimitRPS) * 2
	}
	if h.MaxConcurrent <= 0 {
		h.MaxConcurrent = 300
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = 10 << 10
	}
	return h
}

func (d Deps) chain(perIP bool) []gin.HandlerFunc {
	h := limits(d.HTTP)
	limit := mdw.RateLimit(rate.Limit(h.RateLimitRPS), h.RateLimitBurst)
	if perIP {
		limit = mdw.RateLimitPerIP(rate.Limit(h.RateLimitRPS), h.RateLimitBurst)
	}
	return []gin.HandlerFunc{
		mdw.RequestID(),
		mdw.Recovery(d.Log),
		limit,
		mdw.ConcurrencyLimit(h.MaxConcurrent),
		mdw.MaxBodyBytes(h.MaxBodyBytes),
		mdw.Timeout(time.Duration(h.RequestTimeoutSec) * time.Second),
		mdw.Metrics(),
		mdw.AccessLog(d.Log),
	}
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, resp.Error(http.StatusNotFound, fmt.Sprintf("Can't find %s on this server!", c.Request.URL.Path)))
}

// NewAPIEngine 用户端：/api/v1，模块通过 Registry 挂载
func NewAPIEngine(d Deps, mods ...any) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := server.NewRouter(d.chain(true)...)
	r.NoRoute(notFound)

	api := r.Group("/api/v1")
	// 鉴权分组：Protect 之后才能拿到当前用户
	private := api.Group("", mdw.Protect(d.Auth, d.Log))

	base := ez.New(api, d.Log, d.Policy)
	NewRegistry(mods...).MountAllAPI(ez.Routes{Public: base, Private: base.On(private)})
	return r
}
