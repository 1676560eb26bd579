package service

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"tour-booking-api/internal/analytics"
	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/core/cache"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/geo"
	"tour-booking-api/internal/query"
)

// TopTours /tours/top-5-tours 的预设参数
var TopTours = query.Params{
	"limit":  "5",
	"sort":   "-ratingsAverage,price",
	"fields": "name,price,ratingsAverage,summary,difficulty",
}

const analyticsPrefix = "analytics:"

// AnalyticsInvalidator 按前缀清缓存，*cache.Cache 满足
type AnalyticsInvalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string) error
}

type TourService struct {
	tours domain.TourRepository
	cache *cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewTourService(tours domain.TourRepository, c *cache.Cache, ttl time.Duration, l *zap.Logger) *TourService {
	if l == nil {
		l = zap.NewNop()
	}
	return &TourService{tours: tours, cache: c, ttl: ttl, log: l}
}

func (s *TourService) List(ctx context.Context, p query.Params) ([]domain.Tour, query.Spec, error) {
	spec, err := query.Build(p, domain.TourFields)
	if err != nil {
		return nil, spec, err
	}
	ts, err := s.tours.FindAll(ctx, spec, nil)
	return ts, spec, err
}

// TopFive 预设覆盖同名的请求参数
func (s *TourService) TopFive(ctx context.Context, p query.Params) ([]domain.Tour, query.Spec, error) {
	return s.List(ctx, p.With(TopTours))
}

func (s *TourService) Get(ctx context.Context, id string) (*domain.TourDetail, error) {
	return s.tours.FindDetail(ctx, id)
}

// Create 派生评分字段忽略请求值
func (s *TourService) Create(ctx context.Context, t *domain.Tour) error {
	t.ID = primitive.NilObjectID
	t.ResetRatings()
	if err := s.tours.Create(ctx, t); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Update payload 为原始 JSON，只覆盖出现的字段
func (s *TourService) Update(ctx context.Context, id string, payload []byte) (*domain.Tour, error) {
	t, err := s.tours.Update(ctx, id, func(t *domain.Tour) error {
		return decodePatch(payload, t)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return t, nil
}

func (s *TourService) Delete(ctx context.Context, id string) error {
	if _, err := s.tours.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *TourService) Stats(ctx context.Context) ([]domain.TourStat, error) {
	out, err := cache.GetOrLoadJSON(s.cache, ctx, analytics.StatsCacheKey(), s.ttl,
		func(ctx context.Context) (*[]domain.TourStat, error) {
			st, err := s.tours.Stats(ctx)
			return &st, err
		})
	if err != nil || out == nil {
		return nil, err
	}
	return *out, nil
}

func (s *TourService) MonthlyPlan(ctx context.Context, rawYear string) ([]domain.MonthlyPlan, error) {
	year, err := analytics.ParseYear(rawYear)
	if err != nil {
		return nil, err
	}
	out, err := cache.GetOrLoadJSON(s.cache, ctx, analytics.PlanCacheKey(year), s.ttl,
		func(ctx context.Context) (*[]domain.MonthlyPlan, error) {
			plan, err := s.tours.MonthlyPlan(ctx, year)
			return &plan, err
		})
	if err != nil || out == nil {
		return nil, err
	}
	return *out, nil
}

// Within 半径范围内的路线，结果不分页
func (s *TourService) Within(ctx context.Context, distance, latlng, unit string) ([]domain.Tour, error) {
	d, err := strconv.ParseFloat(distance, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) {
		return nil, apperr.BadRequest("Invalid distance: " + distance)
	}
	sphere, err := geo.Within(d, latlng, unit)
	if err != nil {
		return nil, err
	}
	spec, err := query.Build(nil, domain.TourFields)
	if err != nil {
		return nil, err
	}
	spec.Limit, spec.Skip = 0, 0
	return s.tours.FindAll(ctx, spec, sphere.Filter("startLocation"))
}

func (s *TourService) invalidate(ctx context.Context) {
	invalidateAnalytics(ctx, s.cache, s.log)
}

// invalidateAnalytics 失败只记日志，不影响已经成功的写入
func invalidateAnalytics(ctx context.Context, inv AnalyticsInvalidator, log *zap.Logger) {
	if inv == nil {
		return
	}
	if err := inv.InvalidatePrefix(ctx, analyticsPrefix); err != nil {
		log.Warn("invalidate analytics cache", zap.Error(err))
	}
}

func decodePatch(payload []byte, into any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return apperr.BadRequest("Invalid request body: " + err.Error())
	}
	return nil
}
