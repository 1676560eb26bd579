// Package memory 内存版仓储：语义与 Mongo 实现一致（范围、唯一约束、受保护字段、查询过滤分页、统计），供测试使用
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tour-booking-api/internal/analytics"
	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
)

type Tours struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]domain.Tour

	// StatCalls Stats 被调用的次数，用来断言缓存是否命中
	StatCalls int
}

func NewTours() *Tours { return &Tours{docs: map[primitive.ObjectID]domain.Tour{}} }

func (m *Tours) FindAll(_ context.Context, spec query.Spec, parent bson.M) ([]domain.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := page(values(m.docs), spec, domain.TourScope, parent)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Decorate()
	}
	return out, nil
}

func (m *Tours) find(id string) (domain.Tour, error) {
	oid, err := domain.ParseID(id)
	if err != nil {
		return domain.Tour{}, err
	}
	t, ok := m.docs[oid]
	if !ok || t.SecretTour {
		return domain.Tour{}, apperr.NotFound("No document found with that ID")
	}
	return t, nil
}

func (m *Tours) FindByID(_ context.Context, id string) (*domain.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.find(id)
	if err != nil {
		return nil, err
	}
	t.Decorate()
	return &t, nil
}

func (m *Tours) FindDetail(ctx context.Context, id string) (*domain.TourDetail, error) {
	t, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.TourDetail{Tour: *t}, nil
}

func (m *Tours) Create(_ context.Context, t *domain.Tour) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = primitive.NewObjectID()
	t.Normalize(time.Now())
	if err := t.Validate(); err != nil {
		return err
	}
	for _, o := range m.docs {
		if o.Name == t.Name {
			return apperr.Duplicate(`Duplicate field value: "`+t.Name+`". Please use another value!`, nil)
		}
	}
	m.docs[t.ID] = *t
	return nil
}

func (m *Tours) Update(_ context.Context, id string, apply func(*domain.Tour) error) (*domain.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.find(id)
	if err != nil {
		return nil, err
	}
	avg, qty := t.RatingsAverage, t.RatingsQuantity
	if err := apply(&t); err != nil {
		return nil, err
	}
	t.RatingsAverage, t.RatingsQuantity = avg, qty
	t.Normalize(time.Now())
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.Version++
	m.docs[t.ID] = t
	return &t, nil
}

func (m *Tours) Delete(_ context.Context, id string) (*domain.Tour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.find(id)
	if err != nil {
		return nil, err
	}
	delete(m.docs, t.ID)
	return &t, nil
}

func (m *Tours) SetRatings(_ context.Context, id primitive.ObjectID, q int, avg float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.docs[id]
	if !ok {
		return apperr.NotFound("No tour found with that ID")
	}
	t.RatingsQuantity, t.RatingsAverage = q, avg
	m.docs[id] = t
	return nil
}

func (m *Tours) IDs(context.Context) ([]primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]primitive.ObjectID, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats 与 analytics.TourStatsPipeline 同口径
func (m *Tours) Stats(context.Context) ([]domain.TourStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatCalls++

	groups := map[string]*domain.TourStat{}
	for _, t := range m.docs {
		if t.SecretTour || t.RatingsAverage < analytics.StatsMinRating {
			continue
		}
		g, ok := groups[t.Difficulty]
		if !ok {
			g = &domain.TourStat{Difficulty: t.Difficulty, MinPrice: t.Price, MaxPrice: t.Price}
			groups[t.Difficulty] = g
		}
		g.NumTours++
		g.NumRatings += t.RatingsAverage
		g.AvgPrice += t.Price
		g.MinPrice = min(g.MinPrice, t.Price)
		g.MaxPrice = max(g.MaxPrice, t.Price)
	}

	out := make([]domain.TourStat, 0, len(groups))
	for d, g := range groups {
		if d == analytics.StatsExcludedDifficulty {
			continue
		}
		g.AvgRating = g.NumRatings / float64(g.NumTours)
		g.AvgPrice /= float64(g.NumTours)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgPrice != out[j].AvgPrice {
			return out[i].AvgPrice < out[j].AvgPrice
		}
		return out[i].Difficulty < out[j].Difficulty
	})
	return out, nil
}

// MonthlyPlan 与 analytics.MonthlyPlanPipeline 同口径：[year-01-01, year+1-01-01) 内按月计数
func (m *Tours) MonthlyPlan(_ context.Context, year int) ([]domain.MonthlyPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := analytics.YearRange(year)

	months := map[int]*domain.MonthlyPlan{}
	for _, t := range values(m.docs) {
		if t.SecretTour {
			continue
		}
		for _, d := range t.StartDates {
			d = d.UTC()
			if d.Before(from) || !d.Before(to) {
				continue
			}
			p, ok := months[int(d.Month())]
			if !ok {
				p = &domain.MonthlyPlan{Month: int(d.Month())}
				months[p.Month] = p
			}
			p.NumTourStarts++
			p.Tours = append(p.Tours, t.Name)
		}
	}

	out := make([]domain.MonthlyPlan, 0, len(months))
	for _, p := range months {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NumTourStarts != out[j].NumTourStarts {
			return out[i].NumTourStarts > out[j].NumTourStarts
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

type Reviews struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]domain.Review
}

func NewReviews() *Reviews { return &Reviews{docs: map[primitive.ObjectID]domain.Review{}} }

func (m *Reviews) FindAll(_ context.Context, spec query.Spec, parent bson.M) ([]domain.ReviewDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, err := page(values(m.docs), spec, parent)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReviewDetail, len(rs))
	for i, r := range rs {
		out[i] = domain.ReviewDetail{Review: r}
	}
	return out, nil
}

func (m *Reviews) FindByID(_ context.Context, id string) (*domain.ReviewDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(id)
	if err != nil {
		return nil, err
	}
	return &domain.ReviewDetail{Review: r}, nil
}

func (m *Reviews) find(id string) (domain.Review, error) {
	oid, err := domain.ParseID(id)
	if err != nil {
		return domain.Review{}, err
	}
	r, ok := m.docs[oid]
	if !ok {
		return domain.Review{}, apperr.NotFound("No document found with that ID")
	}
	return r, nil
}

func (m *Reviews) Create(_ context.Context, r *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = primitive.NewObjectID()
	r.Normalize(time.Now())
	if err := r.Validate(); err != nil {
		return err
	}
	for _, o := range m.docs {
		if o.Tour == r.Tour && o.User == r.User {
			return apperr.Duplicate("Duplicate field value: tour+user. Please use another value!", nil)
		}
	}
	m.docs[r.ID] = *r
	return nil
}

func (m *Reviews) Update(_ context.Context, id string, apply func(*domain.Review) error) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(id)
	if err != nil {
		return nil, err
	}
	tour, user := r.Tour, r.User
	if err := apply(&r); err != nil {
		return nil, err
	}
	r.Tour, r.User = tour, user
	r.Normalize(time.Now())
	if err := r.Validate(); err != nil {
		return nil, err
	}
	m.docs[r.ID] = r
	return &r, nil
}

func (m *Reviews) Delete(_ context.Context, id string) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(id)
	if err != nil {
		return nil, err
	}
	delete(m.docs, r.ID)
	return &r, nil
}

func (m *Reviews) RatingStats(_ context.Context, tourID primitive.ObjectID) (domain.RatingStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var st domain.RatingStats
	sum := 0.0
	for _, r := range m.docs {
		if r.Tour == tourID {
			st.Count++
			sum += r.Rating
		}
	}
	if st.Count > 0 {
		st.Average = sum / float64(st.Count)
	}
	return st, nil
}

type Users struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]domain.User
}

func NewUsers() *Users { return &Users{docs: map[primitive.ObjectID]domain.User{}} }

func (m *Users) FindAll(_ context.Context, spec query.Spec, withInactive bool) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scope := domain.UserScope
	if withInactive {
		scope = nil
	}
	return page(values(m.docs), spec, scope)
}

func (m *Users) find(id string) (domain.User, error) {
	oid, err := domain.ParseID(id)
	if err != nil {
		return domain.User{}, err
	}
	u, ok := m.docs[oid]
	if !ok || !u.IsActive() {
		return domain.User{}, apperr.NotFound("No document found with that ID")
	}
	return u, nil
}

func (m *Users) FindByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.find(id)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (m *Users) first(match func(domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.docs {
		if u.IsActive() && match(u) {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("No document found with that ID")
}

func (m *Users) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return m.first(func(u domain.User) bool { return u.Email == email })
}

func (m *Users) FindByResetToken(_ context.Context, digest string, now time.Time) (*domain.User, error) {
	return m.first(func(u domain.User) bool {
		return u.PasswordResetToken == digest && u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now)
	})
}

func (m *Users) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = primitive.NewObjectID()
	u.Normalize(time.Now())
	if err := u.Validate(); err != nil {
		return err
	}
	for _, o := range m.docs {
		if o.Email == u.Email {
			return apperr.Duplicate(`Duplicate field value: "`+u.Email+`". Please use another value!`, nil)
		}
	}
	m.docs[u.ID] = *u
	return nil
}

func (m *Users) Update(_ context.Context, id string, apply func(*domain.User) error) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.find(id)
	if err != nil {
		return nil, err
	}
	if err := apply(&u); err != nil {
		return nil, err
	}
	u.Normalize(time.Now())
	if err := u.Validate(); err != nil {
		return nil, err
	}
	m.docs[u.ID] = u
	return &u, nil
}

func (m *Users) SaveCredentials(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[u.ID]
	if !ok {
		return apperr.NotFound("No document found with that ID")
	}
	cur.Password = u.Password
	cur.PasswordChangedAt = u.PasswordChangedAt
	cur.PasswordResetToken = u.PasswordResetToken
	cur.PasswordResetExpires = u.PasswordResetExpires
	m.docs[u.ID] = cur
	return nil
}

func (m *Users) Deactivate(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.find(id)
	if err != nil {
		return nil, err
	}
	inactive := false
	u.Active = &inactive
	m.docs[u.ID] = u
	return &u, nil
}

// values map 的值按 _id 排好，保证遍历顺序稳定
func values[T any](docs map[primitive.ObjectID]T) []T {
	ids := make([]primitive.ObjectID, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = docs[id]
	}
	return out
}

var (
	_ domain.TourRepository   = (*Tours)(nil)
	_ domain.ReviewRepository = (*Reviews)(nil)
	_ domain.UserRepository   = (*Users)(nil)
)
