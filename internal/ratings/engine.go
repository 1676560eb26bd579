// Package ratings keeps a tour's ratingsAverage / ratingsQuantity equal to
// the aggregate of its reviews.
package ratings

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"tour-booking-api/internal/domain"
)

var recalculations = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "ratings_recalculations_total", Help: "Tour rating recalculations by result"},
	[]string{"result"},
)

func init() { prometheus.MustRegister(recalculations) }

// Source 评论侧：按路线聚合 count / avg
type Source interface {
	RatingStats(ctx context.Context, tourID primitive.ObjectID) (domain.RatingStats, error)
}

// Sink 路线侧：无范围写入派生字段（秘密路线也要更新）
type Sink interface {
	SetRatings(ctx context.Context, id primitive.ObjectID, quantity int, average float64) error
}

type Engine struct {
	reviews Source
	tours   Sink
	log     *zap.Logger
}

func NewEngine(reviews Source, tours Sink, l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	return &Engine{reviews: reviews, tours: tours, log: l}
}

// Recalculate 重新聚合并写回；没有评论时回到 0 / 4.5
func (e *Engine) Recalculate(ctx context.Context, tourID primitive.ObjectID) (domain.RatingStats, error) {
	st, err := e.reviews.RatingStats(ctx, tourID)
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("aggregate ratings of %s: %w", tourID.Hex(), err)
	}
	out := domain.RatingStats{Count: st.Count, Average: domain.DefaultRatingsAverage}
	if st.Count > 0 {
		out.Average = domain.RoundRating(st.Average)
	}
	if err := e.tours.SetRatings(ctx, tourID, out.Count, out.Average); err != nil {
		return domain.RatingStats{}, fmt.Errorf("store ratings of %s: %w", tourID.Hex(), err)
	}
	return out, nil
}

// Sync 评论写入后调用：失败只记录，不影响已经成功的写操作
func (e *Engine) Sync(ctx context.Context, tourIDs ...primitive.ObjectID) {
	for _, id := range tourIDs {
		if id.IsZero() {
			continue
		}
		st, err := e.Recalculate(ctx, id)
		if err != nil {
			recalculations.WithLabelValues("failure").Inc()
			e.log.Error("ratings recalculation failed", zap.String("tour", id.Hex()), zap.Error(err))
			continue
		}
		recalculations.WithLabelValues("success").Inc()
		e.log.Debug("ratings recalculated",
			zap.String("tour", id.Hex()),
			zap.Int("quantity", st.Count),
			zap.Float64("average", st.Average),
		)
	}
}
