package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
	"tour-booking-api/internal/ratings"
	"tour-booking-api/internal/service"
	"tour-booking-api/internal/transport/http/ez"
	resp "tour-booking-api/internal/transport/http/response"
)

// AdminHandler 管理端：用户管理 + 评分重算
type AdminHandler struct {
	users      *service.UserService
	engine     *ratings.Engine
	reconciler *ratings.Reconciler
}

func NewAdminHandler(users *service.UserService, engine *ratings.Engine, rec *ratings.Reconciler) *AdminHandler {
	return &AdminHandler{users: users, engine: engine, reconciler: rec}
}

// MountAdmin 分组上已经挂了 Protect + Authorize(admin)
func (h *AdminHandler) MountAdmin(e ez.EZ) {
	ez.RegisterAction(e, ez.Action[query.Params, resp.Resp]{
		Method: http.MethodGet, Path: "/users", Binder: ez.BindQuery, Handler: h.listUsers,
	})
	ez.RegisterAction(e, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodPost, Path: "/users/:id/ban", Binder: ez.BindNone, Handler: h.ban,
	})
	ez.RegisterAction(e, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodPost, Path: "/tours/:id/recalculate", Binder: ez.BindNone, Handler: h.recalculate,
	})
	ez.RegisterAction(e, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodPost, Path: "/tours/recalculate", Binder: ez.BindNone, Handler: h.reconcile,
	})
}

// listUsers ?with_inactive=true 时包含已停用用户
func (h *AdminHandler) listUsers(c *gin.Context, p *query.Params) (resp.Resp, error) {
	params := query.Params{}
	for k, v := range *p {
		if k != "with_inactive" {
			params[k] = v
		}
	}
	us, spec, err := h.users.List(c.Request.Context(), params, (*p)["with_inactive"] == "true")
	if err != nil {
		return resp.Resp{}, err
	}
	return listOf(us, spec)
}

func (h *AdminHandler) ban(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	u, err := h.users.Ban(c.Request.Context(), c.Param("id"))
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.OK(u), nil
}

func (h *AdminHandler) recalculate(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	id, err := domain.ParseID(c.Param("id"))
	if err != nil {
		return resp.Resp{}, err
	}
	st, err := h.engine.Recalculate(c.Request.Context(), id)
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.Named("ratings", st), nil
}

func (h *AdminHandler) reconcile(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	res, err := h.reconciler.RunOnce(c.Request.Context())
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.Named("result", res), nil
}
