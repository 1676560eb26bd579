package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"tour-booking-api/internal/analytics"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
)

type ReviewRepo struct {
	store *Store[domain.Review, *domain.Review]
	users *mongo.Collection
}

var _ domain.ReviewRepository = (*ReviewRepo)(nil)

func NewReviewRepo(db *mongo.Database) *ReviewRepo {
	return &ReviewRepo{
		store: NewStore[domain.Review](db.Collection(ReviewsCollection), nil, domain.ReviewProtected...),
		users: db.Collection(UsersCollection),
	}
}

func (r *ReviewRepo) FindAll(ctx context.Context, spec query.Spec, parent bson.M) ([]domain.ReviewDetail, error) {
	rs, err := r.store.FindAll(ctx, spec, parent)
	if err != nil {
		return nil, err
	}
	return r.expand(ctx, rs)
}

// ForTour 路线详情的联表评论，不分页
func (r *ReviewRepo) ForTour(ctx context.Context, tourID primitive.ObjectID) ([]domain.ReviewDetail, error) {
	spec := query.Spec{Sort: bson.D{{Key: query.IDField, Value: 1}}, Projection: bson.D{{Key: query.VersionField, Value: 0}}}
	return r.FindAll(ctx, spec, bson.M{"tour": tourID})
}

func (r *ReviewRepo) FindByID(ctx context.Context, id string) (*domain.ReviewDetail, error) {
	rv, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ds, err := r.expand(ctx, []domain.Review{*rv})
	if err != nil {
		return nil, err
	}
	return &ds[0], nil
}

func (r *ReviewRepo) Create(ctx context.Context, rv *domain.Review) error {
	return r.store.Create(ctx, rv)
}

func (r *ReviewRepo) Update(ctx context.Context, id string, apply func(*domain.Review) error) (*domain.Review, error) {
	return r.store.Update(ctx, id, apply)
}

func (r *ReviewRepo) Delete(ctx context.Context, id string) (*domain.Review, error) {
	return r.store.Delete(ctx, id)
}

func (r *ReviewRepo) RatingStats(ctx context.Context, tourID primitive.ObjectID) (domain.RatingStats, error) {
	cur, err := r.store.coll.Aggregate(ctx, analytics.RatingStatsPipeline(tourID))
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	var rows []domain.RatingStats
	if err := cur.All(ctx, &rows); err != nil {
		return domain.RatingStats{}, fmt.Errorf("decode ratings: %w", err)
	}
	if len(rows) == 0 {
		return domain.RatingStats{}, nil
	}
	return rows[0], nil
}

func (r *ReviewRepo) expand(ctx context.Context, rs []domain.Review) ([]domain.ReviewDetail, error) {
	ids := make([]primitive.ObjectID, 0, len(rs))
	for _, rv := range rs {
		ids = append(ids, rv.User)
	}
	refs, err := userRefs(ctx, r.users, uniqueIDs(ids), false)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReviewDetail, 0, len(rs))
	for _, rv := range rs {
		d := domain.ReviewDetail{Review: rv}
		if ref, ok := refs[rv.User]; ok {
			d.User = &ref
		}
		out = append(out, d)
	}
	return out, nil
}

