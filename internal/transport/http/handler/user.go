package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
	"tour-booking-api/internal/service"
	"tour-booking-api/internal/transport/http/ez"
	mdw "tour-booking-api/internal/transport/http/middleware"
	resp "tour-booking-api/internal/transport/http/response"
)

// CookieOptions jwt cookie 的过期时间与 Secure 标记
type CookieOptions struct {
	TTL    time.Duration
	Secure bool
}

type UserHandler struct {
	auth      *service.AuthService
	users     *service.UserService
	cookie    CookieOptions
	publicURL string
}

func NewUserHandler(a *service.AuthService, u *service.UserService, cookie CookieOptions, publicURL string) *UserHandler {
	return &UserHandler{auth: a, users: u, cookie: cookie, publicURL: publicURL}
}

func (h *UserHandler) Priority() int { return 0 }

func (h *UserHandler) MountAPI(r ez.Routes) {
	// 公开：注册 / 登录 / 找回密码
	ez.RegisterAction(r.Public, ez.Action[domain.Signup, resp.Resp]{
		Method: http.MethodPost, Path: "/users/signup", Binder: ez.BindJSON, Status: http.StatusCreated, Handler: h.signup,
	})
	ez.RegisterAction(r.Public, ez.Action[domain.Login, resp.Resp]{
		Method: http.MethodPost, Path: "/users/login", Binder: ez.BindJSON, Handler: h.login,
	})
	ez.RegisterAction(r.Public, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodGet, Path: "/users/logout", Binder: ez.BindNone, Handler: h.logout,
	})
	ez.RegisterAction(r.Public, ez.Action[forgotIn, resp.Resp]{
		Method: http.MethodPost, Path: "/users/forgotPassword", Binder: ez.BindJSON, Handler: h.forgot,
	})
	ez.RegisterAction(r.Public, ez.Action[domain.NewPassword, resp.Resp]{
		Method: http.MethodPatch, Path: "/users/resetPassword/:token", Binder: ez.BindJSON, Handler: h.reset,
	})

	// 登录用户：自己的资料
	ez.RegisterAction(r.Private, ez.Action[domain.PasswordChange, resp.Resp]{
		Method: http.MethodPatch, Path: "/users/updateMyPassword", Binder: ez.BindJSON, Auth: true, Handler: h.updatePassword,
	})
	ez.RegisterAction(r.Private, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodGet, Path: "/users/me", Binder: ez.BindNone, Auth: true, Handler: h.me,
	})
	ez.RegisterAction(r.Private, ez.Action[domain.ProfileUpdate, resp.Resp]{
		Method: http.MethodPatch, Path: "/users/updateMe", Binder: ez.BindJSON, Auth: true, Handler: h.updateMe,
	})
	ez.RegisterAction(r.Private, ez.Action[struct{}, struct{}]{
		Method: http.MethodDelete, Path: "/users/deleteMe", Binder: ez.BindNone, Auth: true,
		Status: http.StatusNoContent, Handler: h.deleteMe,
	})

	// 管理员
	ez.RegisterAction(r.Private, ez.Action[query.Params, resp.Resp]{
		Method: http.MethodGet, Path: "/users", Binder: ez.BindQuery,
		Resource: ResUsers, Act: "list", Handler: h.list,
	})
	ez.RegisterAction(r.Private, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodGet, Path: "/users/:id", Binder: ez.BindNone,
		Resource: ResUsers, Act: "read", Handler: h.get,
	})
	ez.RegisterAction(r.Private, ez.Action[[]byte, resp.Resp]{
		Method: http.MethodPatch, Path: "/users/:id", Binder: ez.BindRaw,
		Resource: ResUsers, Act: "update", Handler: h.update,
	})
	ez.RegisterAction(r.Private, ez.Action[struct{}, struct{}]{
		Method: http.MethodDelete, Path: "/users/:id", Binder: ez.BindNone,
		Resource: ResUsers, Act: "delete", Status: http.StatusNoContent, Handler: h.delete,
	})
}

// sendToken 令牌同时放在响应体和 httpOnly cookie 里
func (h *UserHandler) sendToken(c *gin.Context, u *domain.User, token string) resp.Resp {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(mdw.CookieName, token, int(h.cookie.TTL.Seconds()), "/", "", h.cookie.Secure, true)
	return resp.Token(token, u)
}

func (h *UserHandler) signup(c *gin.Context, in *domain.Signup) (resp.Resp, error) {
	u, tok, err := h.auth.Signup(c.Request.Context(), *in)
	if err != nil {
		return resp.Resp{}, err
	}
	return h.sendToken(c, u, tok), nil
}

func (h *UserHandler) login(c *gin.Context, in *domain.Login) (resp.Resp, error) {
	u, tok, err := h.auth.Login(c.Request.Context(), *in)
	if err != nil {
		return resp.Resp{}, err
	}
	return h.sendToken(c, u, tok), nil
}

// logout 用短命的占位值覆盖 cookie
func (h *UserHandler) logout(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(mdw.CookieName, "loggedout", 10, "/", "", h.cookie.Secure, true)
	return resp.Resp{Status: resp.StatusSuccess}, nil
}

type forgotIn struct {
	Email string `json:"email"`
}

func (h *UserHandler) forgot(c *gin.Context, in *forgotIn) (resp.Resp, error) {
	if err := h.auth.ForgotPassword(c.Request.Context(), in.Email, h.baseURL(c)); err != nil {
		return resp.Resp{}, err
	}
	return resp.Resp{Status: resp.StatusSuccess, Message: "Token sent to email!"}, nil
}

// baseURL 未配置公开地址时按当前请求推断
func (h *UserHandler) baseURL(c *gin.Context) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

func (h *UserHandler) reset(c *gin.Context, in *domain.NewPassword) (resp.Resp, error) {
	u, tok, err := h.auth.ResetPassword(c.Request.Context(), c.Param("token"), *in)
	if err != nil {
		return resp.Resp{}, err
	}
	return h.sendToken(c, u, tok), nil
}

func (h *UserHandler) updatePassword(c *gin.Context, in *domain.PasswordChange) (resp.Resp, error) {
	u, tok, err := h.auth.UpdatePassword(c.Request.Context(), mdw.CurrentUser(c), *in)
	if err != nil {
		return resp.Resp{}, err
	}
	return h.sendToken(c, u, tok), nil
}

func (h *UserHandler) me(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	return resp.OK(mdw.CurrentUser(c)), nil
}

func (h *UserHandler) updateMe(c *gin.Context, in *domain.ProfileUpdate) (resp.Resp, error) {
	u, err := h.users.UpdateMe(c.Request.Context(), mdw.CurrentUser(c), *in)
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.Named("user", u), nil
}

func (h *UserHandler) deleteMe(c *gin.Context, _ *struct{}) (struct{}, error) {
	return struct{}{}, h.users.DeleteMe(c.Request.Context(), mdw.CurrentUser(c))
}

func (h *UserHandler) list(c *gin.Context, p *query.Params) (resp.Resp, error) {
	us, spec, err := h.users.List(c.Request.Context(), *p, false)
	if err != nil {
		return resp.Resp{}, err
	}
	return listOf(us, spec)
}

func (h *UserHandler) get(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.OK(u), nil
}

func (h *UserHandler) update(c *gin.Context, raw *[]byte) (resp.Resp, error) {
	u, err := h.users.Update(c.Request.Context(), c.Param("id"), *raw)
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.OK(u), nil
}

func (h *UserHandler) delete(c *gin.Context, _ *struct{}) (struct{}, error) {
	return struct{}{}, h.users.Delete(c.Request.Context(), c.Param("id"))
}
