package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/query"
)

// Review 每个用户对同一路线只能评一次（tour+user 唯一索引）
type Review struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Text      string             `bson:"review" json:"review" validate:"required"`
	Rating    float64            `bson:"rating" json:"rating" validate:"gte=1,lte=5"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	Tour      primitive.ObjectID `bson:"tour" json:"tour"`
	User      primitive.ObjectID `bson:"user" json:"user"`
	Version   int                `bson:"__v" json:"-"`
}

var ReviewFields = query.Schema{
	"_id":       query.ObjectID,
	"review":    query.String,
	"rating":    query.Number,
	"createdAt": query.Date,
	"tour":      query.ObjectID,
	"user":      query.ObjectID,
}

// ReviewProtected 评论不能改挂到别的路线或用户
var ReviewProtected = []string{"tour", "user"}

var reviewMessages = map[string]string{
	"review.required": "Review can not be empty!",
	"rating.gte":      "Rating must be above 1.0",
	"rating.lte":      "Rating must be below 5.0",
}

func (r *Review) GetID() primitive.ObjectID   { return r.ID }
func (r *Review) SetID(id primitive.ObjectID) { r.ID = id }

func (r *Review) Normalize(now time.Time) {
	r.Text = strings.TrimSpace(r.Text)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
}

func (r *Review) Validate() error {
	var extra []apperr.Violation
	if r.Tour.IsZero() {
		extra = append(extra, apperr.Violation{Field: "tour", Rule: "required", Message: "Review must belong to a tour."})
	}
	if r.User.IsZero() {
		extra = append(extra, apperr.Violation{Field: "user", Rule: "required", Message: "Review must belong to a user"})
	}
	return checkStruct(r, reviewMessages, extra...)
}

// NewReview 创建评论的请求体；只有没带 rating 时才取默认值，显式的 0 照常走校验
type NewReview struct {
	Text   string             `json:"review"`
	Rating *float64           `json:"rating"`
	Tour   primitive.ObjectID `json:"tour"`
}

func (n *NewReview) Review() *Review {
	r := &Review{Text: n.Text, Rating: DefaultRatingsAverage, Tour: n.Tour}
	if n.Rating != nil {
		r.Rating = *n.Rating
	}
	return r
}

// ReviewDetail 读取视图：user 展开为 {id, name, photo}
type ReviewDetail struct {
	Review
	User *UserRef `json:"user"`
}
