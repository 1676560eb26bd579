package domain

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tour-booking-api/internal/query"
)

// TourRepository 读写默认排除秘密路线；SetRatings / IDs 不带范围
type TourRepository interface {
	FindAll(ctx context.Context, spec query.Spec, parent bson.M) ([]Tour, error)
	FindByID(ctx context.Context, id string) (*Tour, error)
	FindDetail(ctx context.Context, id string) (*TourDetail, error)
	Create(ctx context.Context, t *Tour) error
	Update(ctx context.Context, id string, apply func(*Tour) error) (*Tour, error)
	Delete(ctx context.Context, id string) (*Tour, error)

	SetRatings(ctx context.Context, id primitive.ObjectID, quantity int, average float64) error
	IDs(ctx context.Context) ([]primitive.ObjectID, error)

	Stats(ctx context.Context) ([]TourStat, error)
	MonthlyPlan(ctx context.Context, year int) ([]MonthlyPlan, error)
}

type UserRepository interface {
	FindAll(ctx context.Context, spec query.Spec, withInactive bool) ([]User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByResetToken(ctx context.Context, digest string, now time.Time) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, id string, apply func(*User) error) (*User, error)
	// SaveCredentials 只写密码与重置令牌相关字段
	SaveCredentials(ctx context.Context, u *User) error
	// Deactivate 软删除
	Deactivate(ctx context.Context, id string) (*User, error)
}

type ReviewRepository interface {
	FindAll(ctx context.Context, spec query.Spec, parent bson.M) ([]ReviewDetail, error)
	FindByID(ctx context.Context, id string) (*ReviewDetail, error)
	Create(ctx context.Context, r *Review) error
	Update(ctx context.Context, id string, apply func(*Review) error) (*Review, error)
	Delete(ctx context.Context, id string) (*Review, error)

	RatingStats(ctx context.Context, tourID primitive.ObjectID) (RatingStats, error)
}
