package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/core/auth"
	"tour-booking-api/internal/domain"
)

func init() { gin.SetMode(gin.TestMode) }

type tokenAuth map[string]*domain.User

func (t tokenAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return nil, apperr.Unauthorized("You are not logged in! Please log in to get access.")
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenFromPrefersBearer(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, TokenFrom(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})
	assert.Equal(t, "header-token", serve(r, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", serve(r, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, serve(r, req).Body.String())
}

func TestProtectAndAuthorize(t *testing.T) {
	users := tokenAuth{
		"u": {Name: "Jonas", Role: domain.RoleUser},
		"a": {Name: "Admin", Role: domain.RoleAdmin},
	}
	p := auth.NewPolicy().Requires("tours", "delete", domain.RoleAdmin)

	r := gin.New()
	r.DELETE("/tours", Protect(users, zap.NewNop()), Authorize(p, "tours", "delete"), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Name)
	})

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/tours", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return serve(r, req)
	}

	w := call("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"fail"`)

	w = call("u")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), msgForbidden)

	w = call("a")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Admin", w.Body.String())
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.POST("/", MaxBodyBytes(8), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitPerIP(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimitPerIP(0.001, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), msgTooMany)

	// 另一个 IP 有自己的桶
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:4000"
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestRecoveryReturnsEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/", func(*gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Something went very wrong!"}`, w.Body.String())
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.GET("/", Timeout(10*time.Millisecond), func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestMask(t *testing.T) {
	out := mask(map[string][]string{"password": {"secret"}, "name": {"x"}})
	assert.Equal(t, []string{"****"}, out["password"])
	assert.Equal(t, []string{"x"}, out["name"])
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.GET("/", RequestID(), func(c *gin.Context) { c.String(http.StatusOK, c.GetString(KeyRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(KeyRequestID, "gw-123")
	w := serve(r, req)
	assert.Equal(t, "gw-123", w.Body.String())
	assert.Equal(t, "gw-123", w.Header().Get(KeyRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(KeyRequestID, strings.Repeat("x", 100))
	w = serve(r, req)
	assert.Len(t, w.Body.String(), 36)
}

func TestIPBucketsSweepIdle(t *testing.T) {
	now := time.Now()
	b := &ipBuckets{rps: 1, burst: 1, m: map[string]*bucket{}, lastSweep: now}
	assert.True(t, b.allow("1.1.1.1", now))
	assert.False(t, b.allow("1.1.1.1", now))

	later := now.Add(bucketIdle + time.Second)
	assert.True(t, b.allow("2.2.2.2", later))
	assert.NotContains(t, b.m, "1.1.1.1")
	assert.Contains(t, b.m, "2.2.2.2")
}
