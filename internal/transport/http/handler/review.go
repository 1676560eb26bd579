package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
	"tour-booking-api/internal/service"
	"tour-booking-api/internal/transport/http/ez"
	mdw "tour-booking-api/internal/transport/http/middleware"
	resp "tour-booking-api/internal/transport/http/response"
)

type ReviewHandler struct {
	svc *service.ReviewService
}

func NewReviewHandler(svc *service.ReviewService) *ReviewHandler { return &ReviewHandler{svc: svc} }

func (h *ReviewHandler) Priority() int { return 20 }

// MountAPI 评论接口全部要求登录；/tours/:id/reviews 是按路线限定的同一组操作
func (h *ReviewHandler) MountAPI(r ez.Routes) {
	for base, tourID := range map[string]func(*gin.Context) string{
		"/reviews":           func(*gin.Context) string { return "" },
		"/tours/:id/reviews": func(c *gin.Context) string { return c.Param("id") },
	} {
		ez.RegisterAction(r.Private, ez.Action[query.Params, resp.Resp]{
			Method: http.MethodGet, Path: base, Binder: ez.BindQuery, Auth: true,
			Handler: h.list(tourID),
		})
		ez.RegisterAction(r.Private, ez.Action[domain.NewReview, resp.Resp]{
			Method: http.MethodPost, Path: base, Binder: ez.BindJSON,
			Resource: ResReviews, Act: "create", Status: http.StatusCreated,
			Handler: h.create(tourID),
		})
	}
	ez.RegisterAction(r.Private, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodGet, Path: "/reviews/:id", Binder: ez.BindNone, Auth: true, Handler: h.get,
	})
	ez.RegisterAction(r.Private, ez.Action[[]byte, resp.Resp]{
		Method: http.MethodPatch, Path: "/reviews/:id", Binder: ez.BindRaw,
		Resource: ResReviews, Act: "update", Handler: h.update,
	})
	ez.RegisterAction(r.Private, ez.Action[struct{}, struct{}]{
		Method: http.MethodDelete, Path: "/reviews/:id", Binder: ez.BindNone,
		Resource: ResReviews, Act: "delete", Status: http.StatusNoContent, Handler: h.delete,
	})
}

func (h *ReviewHandler) list(tourID func(*gin.Context) string) func(*gin.Context, *query.Params) (resp.Resp, error) {
	return func(c *gin.Context, p *query.Params) (resp.Resp, error) {
		rs, spec, err := h.svc.List(c.Request.Context(), tourID(c), *p)
		if err != nil {
			return resp.Resp{}, err
		}
		return listOf(rs, spec)
	}
}

func (h *ReviewHandler) create(tourID func(*gin.Context) string) func(*gin.Context, *domain.NewReview) (resp.Resp, error) {
	return func(c *gin.Context, in *domain.NewReview) (resp.Resp, error) {
		r := in.Review()
		if err := h.svc.Create(c.Request.Context(), tourID(c), mdw.CurrentUser(c), r); err != nil {
			return resp.Resp{}, err
		}
		return resp.OK(r), nil
	}
}

func (h *ReviewHandler) get(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	r, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.OK(r), nil
}

func (h *ReviewHandler) update(c *gin.Context, raw *[]byte) (resp.Resp, error) {
	r, err := h.svc.Update(c.Request.Context(), c.Param("id"), mdw.CurrentUser(c), *raw)
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.OK(r), nil
}

func (h *ReviewHandler) delete(c *gin.Context, _ *struct{}) (struct{}, error) {
	return struct{}{}, h.svc.Delete(c.Request.Context(), c.Param("id"), mdw.CurrentUser(c))
}
