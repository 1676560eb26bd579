package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
)

type UserRepo struct {
	store *Store[domain.User, *domain.User]
}

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{
		store: NewStore[domain.User](db.Collection(UsersCollection), domain.UserScope, domain.UserProtected...),
	}
}

func (r *UserRepo) FindAll(ctx context.Context, spec query.Spec, withInactive bool) ([]domain.User, error) {
	s := r.store
	if withInactive {
		s = s.Unscoped()
	}
	return s.FindAll(ctx, spec, nil)
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.store.FindByID(ctx, id)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.store.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

// FindByResetToken 令牌摘要匹配且未过期
func (r *UserRepo) FindByResetToken(ctx context.Context, digest string, now time.Time) (*domain.User, error) {
	return r.store.findOne(ctx, bson.M{
		"passwordResetToken":   digest,
		"passwordResetExpires": bson.M{"$gt": now.UTC()},
	})
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	return r.store.Create(ctx, u)
}

func (r *UserRepo) Update(ctx context.Context, id string, apply func(*domain.User) error) (*domain.User, error) {
	return r.store.Update(ctx, id, apply)
}

func (r *UserRepo) SaveCredentials(ctx context.Context, u *domain.User) error {
	set := bson.M{"password": u.Password}
	unset := bson.M{}
	if u.PasswordChangedAt != nil {
		set["passwordChangedAt"] = *u.PasswordChangedAt
	}
	if u.PasswordResetToken != "" && u.PasswordResetExpires != nil {
		set["passwordResetToken"] = u.PasswordResetToken
		set["passwordResetExpires"] = *u.PasswordResetExpires
	} else {
		unset["passwordResetToken"] = ""
		unset["passwordResetExpires"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := r.store.coll.UpdateOne(ctx, r.store.where(bson.M{"_id": u.ID}), update)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound(msgNotFound)
	}
	return nil
}

// Deactivate 软删除：active=false 之后所有默认读取都看不到
func (r *UserRepo) Deactivate(ctx context.Context, id string) (*domain.User, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	var u domain.User
	err = r.store.coll.FindOneAndUpdate(ctx,
		r.store.where(bson.M{"_id": oid}),
		bson.M{"$set": bson.M{"active": false}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("deactivate user: %w", err)
	}
	return &u, nil
}
