package repo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tour-booking-api/internal/analytics"
	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
)

const (
	ToursCollection   = "tours"
	UsersCollection   = "users"
	ReviewsCollection = "reviews"
)

type TourRepo struct {
	store   *Store[domain.Tour, *domain.Tour]
	users   *mongo.Collection
	reviews *ReviewRepo
}

var _ domain.TourRepository = (*TourRepo)(nil)

func NewTourRepo(db *mongo.Database, reviews *ReviewRepo) *TourRepo {
	return &TourRepo{
		store:   NewStore[domain.Tour](db.Collection(ToursCollection), domain.TourScope, domain.TourProtected...),
		users:   db.Collection(UsersCollection),
		reviews: reviews,
	}
}

func (r *TourRepo) FindAll(ctx context.Context, spec query.Spec, parent bson.M) ([]domain.Tour, error) {
	ts, err := r.store.FindAll(ctx, spec, parent)
	if err != nil {
		return nil, err
	}
	for i := range ts {
		ts[i].Decorate()
	}
	return ts, nil
}

func (r *TourRepo) FindByID(ctx context.Context, id string) (*domain.Tour, error) {
	t, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Decorate()
	return t, nil
}

// FindDetail 展开向导 + 联表评论
func (r *TourRepo) FindDetail(ctx context.Context, id string) (*domain.TourDetail, error) {
	t, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	refs, err := userRefs(ctx, r.users, t.Guides, true)
	if err != nil {
		return nil, err
	}
	guides := make([]domain.UserRef, 0, len(t.Guides))
	for _, gid := range t.Guides {
		if ref, ok := refs[gid]; ok {
			guides = append(guides, ref)
		}
	}
	reviews, err := r.reviews.ForTour(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &domain.TourDetail{Tour: *t, Guides: guides, Reviews: reviews}, nil
}

func (r *TourRepo) Create(ctx context.Context, t *domain.Tour) error {
	if err := r.store.Create(ctx, t); err != nil {
		return err
	}
	t.Decorate()
	return nil
}

func (r *TourRepo) Update(ctx context.Context, id string, apply func(*domain.Tour) error) (*domain.Tour, error) {
	t, err := r.store.Update(ctx, id, apply)
	if err != nil {
		return nil, err
	}
	t.Decorate()
	return t, nil
}

func (r *TourRepo) Delete(ctx context.Context, id string) (*domain.Tour, error) {
	return r.store.Delete(ctx, id)
}

// SetRatings 不带范围：秘密路线的评分同样要维护
func (r *TourRepo) SetRatings(ctx context.Context, id primitive.ObjectID, quantity int, average float64) error {
	res, err := r.store.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"ratingsQuantity": quantity, "ratingsAverage": average}},
	)
	if err != nil {
		return fmt.Errorf("set ratings: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("No tour found with that ID")
	}
	return nil
}

func (r *TourRepo) IDs(ctx context.Context) ([]primitive.ObjectID, error) {
	cur, err := r.store.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("list tour ids: %w", err)
	}
	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode tour ids: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *TourRepo) Stats(ctx context.Context) ([]domain.TourStat, error) {
	out := make([]domain.TourStat, 0)
	if err := r.aggregate(ctx, analytics.TourStatsPipeline(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TourRepo) MonthlyPlan(ctx context.Context, year int) ([]domain.MonthlyPlan, error) {
	out := make([]domain.MonthlyPlan, 0)
	if err := r.aggregate(ctx, analytics.MonthlyPlanPipeline(year), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *TourRepo) aggregate(ctx context.Context, p mongo.Pipeline, out any) error {
	cur, err := r.store.coll.Aggregate(ctx, p)
	if err != nil {
		return fmt.Errorf("aggregate tours: %w", err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode aggregate: %w", err)
	}
	return nil
}
