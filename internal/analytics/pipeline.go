// Package analytics builds the aggregation pipelines behind the tour
// statistics and monthly plan reports. Execution lives in the repository.
package analytics

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"tour-booking-api/internal/core/apperr"
)

const (
	// StatsMinRating 统计只看评分不低于此值的路线
	StatsMinRating = 4.5
	// StatsExcludedDifficulty 统计结果里剔除的分组
	StatsExcludedDifficulty = "easy"
)

var notSecret = bson.D{{Key: "secretTour", Value: bson.D{{Key: "$ne", Value: true}}}}

// TourStatsPipeline 按难度分组的评分 / 价格统计，按均价升序
func TourStatsPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: append(bson.D{
			{Key: "ratingsAverage", Value: bson.D{{Key: "$gte", Value: StatsMinRating}}},
		}, notSecret...)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$difficulty"},
			{Key: "numTours", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "numRatings", Value: bson.D{{Key: "$sum", Value: "$ratingsAverage"}}},
			{Key: "avgRating", Value: bson.D{{Key: "$avg", Value: "$ratingsAverage"}}},
			{Key: "avgPrice", Value: bson.D{{Key: "$avg", Value: "$price"}}},
			{Key: "minPrice", Value: bson.D{{Key: "$min", Value: "$price"}}},
			{Key: "maxPrice", Value: bson.D{{Key: "$max", Value: "$price"}}},
		}}},
		{{Key: "$match", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$ne", Value: StatsExcludedDifficulty}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "avgPrice", Value: 1}}}},
	}
}

// MonthlyPlanPipeline 指定年份内每月出发次数与路线名，出发次数降序
func MonthlyPlanPipeline(year int) mongo.Pipeline {
	from, to := YearRange(year)
	return mongo.Pipeline{
		{{Key: "$match", Value: notSecret}},
		{{Key: "$unwind", Value: "$startDates"}},
		{{Key: "$match", Value: bson.D{
			{Key: "startDates", Value: bson.D{
				{Key: "$gte", Value: from},
				{Key: "$lt", Value: to},
			}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$month", Value: "$startDates"}}},
			{Key: "numTourStarts", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "tours", Value: bson.D{{Key: "$push", Value: "$name"}}},
		}}},
		{{Key: "$addFields", Value: bson.D{{Key: "month", Value: "$_id"}}}},
		{{Key: "$project", Value: bson.D{{Key: "_id", Value: 0}}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "numTourStarts", Value: -1},
			{Key: "month", Value: 1},
		}}},
	}
}

// RatingStatsPipeline 单条路线的评论数与平均分
func RatingStatsPipeline(tourID primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "tour", Value: tourID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$tour"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "average", Value: bson.D{{Key: "$avg", Value: "$rating"}}},
		}}},
	}
}

// YearRange [year-01-01, year+1-01-01) UTC
func YearRange(year int) (time.Time, time.Time) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0)
}

// ParseYear 非数字或超出 1..9999 视为错误请求
func ParseYear(raw string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || year < 1 || year > 9999 {
		return 0, apperr.BadRequest("Invalid year: " + raw)
	}
	return year, nil
}

func StatsCacheKey() string { return "analytics:tour-stats" }

func PlanCacheKey(year int) string { return "analytics:monthly-plan:" + strconv.Itoa(year) }
