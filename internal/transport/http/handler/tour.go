package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
	"tour-booking-api/internal/service"
	"tour-booking-api/internal/transport/http/ez"
	resp "tour-booking-api/internal/transport/http/response"
)

// 策略表里的资源名
const (
	ResTours   = "tours"
	ResReviews = "reviews"
	ResUsers   = "users"
)

type TourHandler struct {
	svc *service.TourService
}

func NewTourHandler(svc *service.TourService) *TourHandler { return &TourHandler{svc: svc} }

func (h *TourHandler) Priority() int { return 10 }

func (h *TourHandler) MountAPI(r ez.Routes) {
	ez.RegisterAction(r.Public, ez.Action[query.Params, resp.Resp]{
		Method: http.MethodGet, Path: "/tours", Binder: ez.BindQuery, Handler: h.list,
	})
	ez.RegisterAction(r.Public, ez.Action[query.Params, resp.Resp]{
		Method: http.MethodGet, Path: "/tours/top-5-tours", Binder: ez.BindQuery, Handler: h.topFive,
	})
	ez.RegisterAction(r.Public, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodGet, Path: "/tours/tour-stats", Binder: ez.BindNone, Handler: h.stats,
	})
	ez.RegisterAction(r.Public, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodGet, Path: "/tours/tours-within/:distance/center/:latlng/unit/:unit",
		Binder: ez.BindNone, Handler: h.within,
	})
	ez.RegisterAction(r.Public, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodGet, Path: "/tours/:id", Binder: ez.BindNone, Handler: h.get,
	})

	ez.RegisterAction(r.Private, ez.Action[struct{}, resp.Resp]{
		Method: http.MethodGet, Path: "/tours/tour-monthly-plan/:year", Binder: ez.BindNone,
		Resource: ResTours, Act: "monthly-plan", Handler: h.plan,
	})
	ez.RegisterAction(r.Private, ez.Action[domain.Tour, resp.Resp]{
		Method: http.MethodPost, Path: "/tours", Binder: ez.BindJSON,
		Resource: ResTours, Act: "create", Status: http.StatusCreated, Handler: h.create,
	})
	ez.RegisterAction(r.Private, ez.Action[[]byte, resp.Resp]{
		Method: http.MethodPatch, Path: "/tours/:id", Binder: ez.BindRaw,
		Resource: ResTours, Act: "update", Handler: h.update,
	})
	ez.RegisterAction(r.Private, ez.Action[struct{}, struct{}]{
		Method: http.MethodDelete, Path: "/tours/:id", Binder: ez.BindNone,
		Resource: ResTours, Act: "delete", Status: http.StatusNoContent, Handler: h.delete,
	})
}

func (h *TourHandler) list(c *gin.Context, p *query.Params) (resp.Resp, error) {
	ts, spec, err := h.svc.List(c.Request.Context(), *p)
	if err != nil {
		return resp.Resp{}, err
	}
	return listOf(ts, spec)
}

func (h *TourHandler) topFive(c *gin.Context, p *query.Params) (resp.Resp, error) {
	ts, spec, err := h.svc.TopFive(c.Request.Context(), *p)
	if err != nil {
		return resp.Resp{}, err
	}
	return listOf(ts, spec)
}

func (h *TourHandler) get(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.OK(t), nil
}

func (h *TourHandler) create(c *gin.Context, in *domain.Tour) (resp.Resp, error) {
	if err := h.svc.Create(c.Request.Context(), in); err != nil {
		return resp.Resp{}, err
	}
	in.Decorate()
	return resp.OK(in), nil
}

func (h *TourHandler) update(c *gin.Context, raw *[]byte) (resp.Resp, error) {
	t, err := h.svc.Update(c.Request.Context(), c.Param("id"), *raw)
	if err != nil {
		return resp.Resp{}, err
	}
	t.Decorate()
	return resp.OK(t), nil
}

func (h *TourHandler) delete(c *gin.Context, _ *struct{}) (struct{}, error) {
	return struct{}{}, h.svc.Delete(c.Request.Context(), c.Param("id"))
}

func (h *TourHandler) stats(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		return resp.Resp{}, err
	}
	if st == nil {
		st = []domain.TourStat{}
	}
	return resp.Named("stats", st), nil
}

func (h *TourHandler) plan(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	plan, err := h.svc.MonthlyPlan(c.Request.Context(), c.Param("year"))
	if err != nil {
		return resp.Resp{}, err
	}
	if plan == nil {
		plan = []domain.MonthlyPlan{}
	}
	return resp.Named("plan", plan), nil
}

func (h *TourHandler) within(c *gin.Context, _ *struct{}) (resp.Resp, error) {
	ts, err := h.svc.Within(c.Request.Context(), c.Param("distance"), c.Param("latlng"), c.Param("unit"))
	if err != nil {
		return resp.Resp{}, err
	}
	if ts == nil {
		ts = []domain.Tour{}
	}
	return resp.List(ts, len(ts)), nil
}

// listOf 列表信封 + 字段投影
func listOf[T any](items []T, spec query.Spec) (resp.Resp, error) {
	if items == nil {
		items = []T{}
	}
	shaped, err := Project(items, spec.Projection)
	if err != nil {
		return resp.Resp{}, err
	}
	return resp.List(shaped, len(items)), nil
}
