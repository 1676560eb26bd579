package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/query"
)

const (
	DefaultRatingsAverage = 4.5

	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"
)

// Location GeoJSON 点，coordinates 为 [lng, lat]
type Location struct {
	Type        string    `bson:"type" json:"type" validate:"omitempty,eq=Point"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates" validate:"omitempty,len=2"`
	Address     string    `bson:"address,omitempty" json:"address,omitempty"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Day         int       `bson:"day,omitempty" json:"day,omitempty"`
}

type Tour struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name            string               `bson:"name" json:"name" validate:"required,min=10,max=40"`
	Slug            string               `bson:"slug" json:"slug"`
	Duration        int                  `bson:"duration" json:"duration" validate:"required,gt=0"`
	MaxGroupSize    int                  `bson:"maxGroupSize" json:"maxGroupSize" validate:"required,gt=0"`
	Difficulty      string               `bson:"difficulty" json:"difficulty" validate:"required,oneof=easy medium difficult"`
	RatingsAverage  float64              `bson:"ratingsAverage" json:"ratingsAverage" validate:"gte=1,lte=5"`
	RatingsQuantity int                  `bson:"ratingsQuantity" json:"ratingsQuantity" validate:"gte=0"`
	Price           float64              `bson:"price" json:"price" validate:"required,gt=0"`
	PriceDiscount   *float64             `bson:"priceDiscount,omitempty" json:"priceDiscount,omitempty" validate:"omitempty,gte=0"`
	Summary         string               `bson:"summary" json:"summary" validate:"required"`
	Description     string               `bson:"description,omitempty" json:"description,omitempty"`
	ImageCover      string               `bson:"imageCover" json:"imageCover" validate:"required"`
	Images          []string             `bson:"images,omitempty" json:"images,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt" json:"createdAt"`
	StartDates      []time.Time          `bson:"startDates,omitempty" json:"startDates,omitempty"`
	SecretTour      bool                 `bson:"secretTour" json:"secretTour"`
	StartLocation   *Location            `bson:"startLocation,omitempty" json:"startLocation,omitempty"`
	Locations       []Location           `bson:"locations,omitempty" json:"locations,omitempty" validate:"dive"`
	Guides          []primitive.ObjectID `bson:"guides,omitempty" json:"guides,omitempty"`

	Version       int     `bson:"__v" json:"-"`
	DurationWeeks float64 `bson:"-" json:"durationWeeks,omitempty"`
}

// TourFields 可用于过滤 / 排序 / 投影的字段
var TourFields = query.Schema{
	"_id":             query.ObjectID,
	"name":            query.String,
	"slug":            query.String,
	"duration":        query.Number,
	"maxGroupSize":    query.Number,
	"difficulty":      query.String,
	"ratingsAverage":  query.Number,
	"ratingsQuantity": query.Number,
	"price":           query.Number,
	"priceDiscount":   query.Number,
	"summary":         query.String,
	"description":     query.String,
	"imageCover":      query.String,
	"images":          query.String,
	"createdAt":       query.Date,
	"startDates":      query.Date,
	"secretTour":      query.Bool,
	"startLocation":   query.Object,
	"locations":       query.Object,
	"guides":          query.ObjectID,
}

// TourScope 默认读取范围：排除秘密路线
var TourScope = bson.M{"secretTour": bson.M{"$ne": true}}

// TourProtected 派生字段，只能由评分引擎写入
var TourProtected = []string{"ratingsAverage", "ratingsQuantity"}

var tourMessages = map[string]string{
	"name.required":         "A tour must have a name",
	"name.min":              "A tour name must have more or equal than 10 characters",
	"name.max":              "A tour name must have less or equal than 40 characters",
	"duration.required":     "A tour must have a duration",
	"maxGroupSize.required": "A tour must have a group size",
	"difficulty.required":   "A tour should have a difficulty",
	"difficulty.oneof":      "Difficulty is either: easy, medium or difficult",
	"ratingsAverage.gte":    "Rating must be above 1.0",
	"ratingsAverage.lte":    "Rating must be below 5.0",
	"price.required":        "A tour must have a price",
	"summary.required":      "A tour must have a summary",
	"imageCover.required":   "A tour must have a cover image",
}

func (t *Tour) GetID() primitive.ObjectID   { return t.ID }
func (t *Tour) SetID(id primitive.ObjectID) { t.ID = id }

// Normalize 保存前：裁剪、slug、默认值、评分取一位小数
func (t *Tour) Normalize(now time.Time) {
	t.Name = strings.TrimSpace(t.Name)
	t.Summary = strings.TrimSpace(t.Summary)
	t.Description = strings.TrimSpace(t.Description)
	t.Slug = slug.Make(t.Name)
	if t.RatingsAverage == 0 {
		t.RatingsAverage = DefaultRatingsAverage
	}
	t.RatingsAverage = RoundRating(t.RatingsAverage)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now.UTC()
	}
	if t.StartLocation != nil && t.StartLocation.Type == "" {
		t.StartLocation.Type = "Point"
	}
	for i := range t.Locations {
		if t.Locations[i].Type == "" {
			t.Locations[i].Type = "Point"
		}
	}
	t.DurationWeeks = 0
}

// ResetRatings 新建路线时派生字段回到默认值
func (t *Tour) ResetRatings() {
	t.RatingsAverage = DefaultRatingsAverage
	t.RatingsQuantity = 0
}

func (t *Tour) Validate() error {
	var extra []apperr.Violation
	if t.PriceDiscount != nil && *t.PriceDiscount >= t.Price {
		extra = append(extra, apperr.Violation{
			Field:   "priceDiscount",
			Rule:    "ltfield",
			Message: fmt.Sprintf("Discount price (%g) should be below regular price", *t.PriceDiscount),
		})
	}
	return checkStruct(t, tourMessages, extra...)
}

// Decorate 读取后补齐虚拟字段
func (t *Tour) Decorate() {
	if t.Duration > 0 {
		t.DurationWeeks = float64(t.Duration) / 7
	}
}

// TourDetail 单条读取：展开向导并联表评论
type TourDetail struct {
	Tour
	Guides  []UserRef      `json:"guides"`
	Reviews []ReviewDetail `json:"reviews"`
}

// RoundRating 保留一位小数
func RoundRating(v float64) float64 { return math.Round(v*10) / 10 }
