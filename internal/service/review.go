package service

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
	"tour-booking-api/internal/ratings"
)

type ReviewService struct {
	reviews   domain.ReviewRepository
	tours     domain.TourRepository
	engine    *ratings.Engine
	analytics AnalyticsInvalidator
	log       *zap.Logger
}

// NewReviewService analytics 可为 nil；评论写入会改动路线评分，需要清掉统计缓存
func NewReviewService(reviews domain.ReviewRepository, tours domain.TourRepository, engine *ratings.Engine, analytics AnalyticsInvalidator, l *zap.Logger) *ReviewService {
	if l == nil {
		l = zap.NewNop()
	}
	return &ReviewService{reviews: reviews, tours: tours, engine: engine, analytics: analytics, log: l}
}

// synced 重算路线评分后统计结果随之失效
func (s *ReviewService) synced(ctx context.Context, tourID primitive.ObjectID) {
	s.engine.Sync(ctx, tourID)
	invalidateAnalytics(ctx, s.analytics, s.log)
}

// List tourID 非空时只看该路线的评论
func (s *ReviewService) List(ctx context.Context, tourID string, p query.Params) ([]domain.ReviewDetail, query.Spec, error) {
	spec, err := query.Build(p, domain.ReviewFields)
	if err != nil {
		return nil, spec, err
	}
	var parent bson.M
	if tourID != "" {
		oid, err := domain.ParseID(tourID)
		if err != nil {
			return nil, spec, err
		}
		parent = bson.M{"tour": oid}
	}
	rs, err := s.reviews.FindAll(ctx, spec, parent)
	return rs, spec, err
}

func (s *ReviewService) Get(ctx context.Context, id string) (*domain.ReviewDetail, error) {
	return s.reviews.FindByID(ctx, id)
}

// Create 路径上的 tourId 优先于请求体；作者始终是当前用户
func (s *ReviewService) Create(ctx context.Context, tourID string, author *domain.User, r *domain.Review) error {
	if author == nil {
		return apperr.Unauthorized(msgNotLoggedIn)
	}
	if tourID != "" {
		oid, err := domain.ParseID(tourID)
		if err != nil {
			return err
		}
		r.Tour = oid
	}
	if !r.Tour.IsZero() {
		if _, err := s.tours.FindByID(ctx, r.Tour.Hex()); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.NotFound("No tour found with that ID")
			}
			return err
		}
	}
	r.ID = primitive.NilObjectID
	r.User = author.ID
	r.CreatedAt = time.Time{}
	if err := s.reviews.Create(ctx, r); err != nil {
		return err
	}
	s.synced(ctx, r.Tour)
	return nil
}

func (s *ReviewService) Update(ctx context.Context, id string, actor *domain.User, payload []byte) (*domain.Review, error) {
	r, err := s.reviews.Update(ctx, id, func(r *domain.Review) error {
		if err := owns(actor, r); err != nil {
			return err
		}
		return decodePatch(payload, r)
	})
	if err != nil {
		return nil, err
	}
	s.synced(ctx, r.Tour)
	return r, nil
}

func (s *ReviewService) Delete(ctx context.Context, id string, actor *domain.User) error {
	existing, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := owns(actor, &existing.Review); err != nil {
		return err
	}
	deleted, err := s.reviews.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.synced(ctx, deleted.Tour)
	return nil
}

// owns 普通用户只能改自己的评论；管理员不受限
func owns(actor *domain.User, r *domain.Review) error {
	if actor == nil {
		return apperr.Unauthorized(msgNotLoggedIn)
	}
	if actor.Role == domain.RoleAdmin || actor.ID == r.User {
		return nil
	}
	return apperr.Forbidden("You can only modify your own reviews")
}
