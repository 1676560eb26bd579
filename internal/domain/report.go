package domain

// TourStat 按难度分组的统计行
type TourStat struct {
	Difficulty string  `bson:"_id" json:"_id"`
	NumTours   int     `bson:"numTours" json:"numTours"`
	NumRatings float64 `bson:"numRatings" json:"numRatings"`
	AvgRating  float64 `bson:"avgRating" json:"avgRating"`
	AvgPrice   float64 `bson:"avgPrice" json:"avgPrice"`
	MinPrice   float64 `bson:"minPrice" json:"minPrice"`
	MaxPrice   float64 `bson:"maxPrice" json:"maxPrice"`
}

// MonthlyPlan 某年每个月出发的路线
type MonthlyPlan struct {
	Month         int      `bson:"month" json:"month"`
	NumTourStarts int      `bson:"numTourStarts" json:"numTourStarts"`
	Tours         []string `bson:"tours" json:"tours"`
}

// RatingStats 单条路线的评论数与平均分
type RatingStats struct {
	Count   int     `bson:"count" json:"count"`
	Average float64 `bson:"average" json:"average"`
}
