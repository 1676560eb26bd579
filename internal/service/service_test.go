package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/domain"
	"tour-booking-api/internal/query"
	"tour-booking-api/internal/ratings"
	"tour-booking-api/internal/repo/memory"
)

func newTour(name string) *domain.Tour {
	return &domain.Tour{
		Name:         name,
		Duration:     5,
		MaxGroupSize: 10,
		Difficulty:   domain.DifficultyEasy,
		Price:        497,
		Summary:      "Breathtaking hike",
		ImageCover:   "cover.jpg",
	}
}

// prefixes 记录被清掉的缓存前缀
type prefixes struct {
	mu   sync.Mutex
	seen []string
}

func (p *prefixes) InvalidatePrefix(_ context.Context, prefix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, prefix)
	return nil
}

func (p *prefixes) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

type fixture struct {
	tours       *memory.Tours
	reviews     *memory.Reviews
	tourSvc     *TourService
	revSvc      *ReviewService
	invalidated *prefixes
}

func newFixture() *fixture {
	tours, reviews := memory.NewTours(), memory.NewReviews()
	engine := ratings.NewEngine(reviews, tours, nil)
	inv := &prefixes{}
	return &fixture{
		tours:       tours,
		reviews:     reviews,
		tourSvc:     NewTourService(tours, nil, 0, nil),
		revSvc:      NewReviewService(reviews, tours, engine, inv, nil),
		invalidated: inv,
	}
}

func (f *fixture) ratingsOf(t *testing.T, id primitive.ObjectID) (int, float64) {
	t.Helper()
	tour, err := f.tours.FindByID(context.Background(), id.Hex())
	require.NoError(t, err)
	return tour.RatingsQuantity, tour.RatingsAverage
}

func TestTourCreateIgnoresDerivedRatings(t *testing.T) {
	f := newFixture()
	tour := newTour("The Forest Hiker")
	tour.RatingsAverage, tour.RatingsQuantity = 1.2, 99
	require.NoError(t, f.tourSvc.Create(context.Background(), tour))

	q, avg := f.ratingsOf(t, tour.ID)
	assert.Equal(t, 0, q)
	assert.Equal(t, 4.5, avg)
	assert.Equal(t, "the-forest-hiker", tour.Slug)
}

func TestTourCreateDuplicateName(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.tourSvc.Create(ctx, newTour("The Sea Explorer")))
	err := f.tourSvc.Create(ctx, newTour("The Sea Explorer"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindDuplicate, apperr.KindOf(err))
}

func TestTourUpdateAppliesOnlyPresentFields(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tour := newTour("The Snow Adventurer")
	require.NoError(t, f.tourSvc.Create(ctx, tour))

	got, err := f.tourSvc.Update(ctx, tour.ID.Hex(), []byte(`{"price":997,"ratingsAverage":1,"ratingsQuantity":7}`))
	require.NoError(t, err)
	assert.Equal(t, 997.0, got.Price)
	assert.Equal(t, "The Snow Adventurer", got.Name)
	assert.Equal(t, 4.5, got.RatingsAverage)
	assert.Equal(t, 0, got.RatingsQuantity)

	_, err = f.tourSvc.Update(ctx, tour.ID.Hex(), []byte(`{"difficulty":"extreme"}`))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.tourSvc.Update(ctx, tour.ID.Hex(), []byte(`{"price":`))
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestTourTopFiveOverridesParams(t *testing.T) {
	f := newFixture()
	_, spec, err := f.tourSvc.TopFive(context.Background(), query.Params{"limit": "50", "sort": "name"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), spec.Limit)
	require.NotEmpty(t, spec.Sort)
	assert.Equal(t, "ratingsAverage", spec.Sort[0].Key)
	assert.Equal(t, -1, spec.Sort[0].Value)
}

// seedRated 建一条路线并直接写入派生评分
func (f *fixture) seedRated(t *testing.T, name, difficulty string, price, avg float64) *domain.Tour {
	t.Helper()
	ctx := context.Background()
	tour := newTour(name)
	tour.Difficulty, tour.Price = difficulty, price
	require.NoError(t, f.tourSvc.Create(ctx, tour))
	require.NoError(t, f.tours.SetRatings(ctx, tour.ID, 3, avg))
	return tour
}

func TestTourStatsGroupsHighlyRatedByDifficulty(t *testing.T) {
	f := newFixture()
	f.seedRated(t, "The Medium Tour One", domain.DifficultyMedium, 400, 4.6)
	f.seedRated(t, "The Medium Tour Two", domain.DifficultyMedium, 600, 4.8)
	f.seedRated(t, "The Easy Tour Three", domain.DifficultyEasy, 300, 4.9)
	f.seedRated(t, "The Medium Tour Four", domain.DifficultyMedium, 900, 4.4)
	f.seedRated(t, "The Hard Tour Five", domain.DifficultyDifficult, 100, 4.7)

	st, err := f.tourSvc.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, st, 2)

	// 均价升序
	assert.Equal(t, domain.DifficultyDifficult, st[0].Difficulty)
	medium := st[1]
	assert.Equal(t, domain.DifficultyMedium, medium.Difficulty)
	assert.Equal(t, 2, medium.NumTours)
	assert.InDelta(t, 4.7, medium.AvgRating, 1e-9)
	assert.InDelta(t, 9.4, medium.NumRatings, 1e-9)
	assert.InDelta(t, 500, medium.AvgPrice, 1e-9)
	assert.Equal(t, 400.0, medium.MinPrice)
	assert.Equal(t, 600.0, medium.MaxPrice)
}

func TestTourStatsWithoutCacheHitsRepository(t *testing.T) {
	f := newFixture()
	f.seedRated(t, "The Medium Tour One", domain.DifficultyMedium, 400, 4.6)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		st, err := f.tourSvc.Stats(ctx)
		require.NoError(t, err)
		require.Len(t, st, 1)
		assert.Equal(t, 1, st[0].NumTours)
	}
	assert.Equal(t, 2, f.tours.StatCalls)
}

func TestTourStatsEmpty(t *testing.T) {
	f := newFixture()
	st, err := f.tourSvc.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st)
}

func TestTourMonthlyPlanRejectsBadYear(t *testing.T) {
	f := newFixture()
	_, err := f.tourSvc.MonthlyPlan(context.Background(), "twenty")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	plan, err := f.tourSvc.MonthlyPlan(context.Background(), "2021")
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestTourMonthlyPlanCountsStartsInYear(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 9, 0, 0, 0, time.UTC) }

	a := newTour("The Forest Hiker Tour")
	a.StartDates = []time.Time{day(2021, time.April, 25), day(2021, time.July, 20), day(2022, time.July, 1)}
	b := newTour("The Sea Explorer Tour")
	b.StartDates = []time.Time{day(2021, time.July, 19), day(2020, time.December, 31)}
	secret := newTour("The Secret Hidden Tour")
	secret.SecretTour = true
	secret.StartDates = []time.Time{day(2021, time.April, 2)}
	for _, tour := range []*domain.Tour{a, b, secret} {
		require.NoError(t, f.tourSvc.Create(ctx, tour))
	}

	plan, err := f.tourSvc.MonthlyPlan(ctx, "2021")
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, 7, plan[0].Month)
	assert.Equal(t, 2, plan[0].NumTourStarts)
	assert.ElementsMatch(t, []string{"The Forest Hiker Tour", "The Sea Explorer Tour"}, plan[0].Tours)
	assert.Equal(t, 4, plan[1].Month)
	assert.Equal(t, 1, plan[1].NumTourStarts)
	assert.Equal(t, []string{"The Forest Hiker Tour"}, plan[1].Tours)
}

func TestTourWithinValidatesInput(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.tourSvc.Within(ctx, "far", "34.1,-118.1", "mi")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	_, err = f.tourSvc.Within(ctx, "200", "34.1", "mi")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	for _, d := range []string{"NaN", "Inf", "-Inf", "+Inf"} {
		_, err = f.tourSvc.Within(ctx, d, "34.1,-118.1", "mi")
		assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err), d)
	}
	_, err = f.tourSvc.Within(ctx, "200", "34.1,-118.1", "mi")
	assert.NoError(t, err)
}

func TestTourWithinFiltersByDistance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	at := func(name string, lat, lng float64) {
		tour := newTour(name)
		tour.StartLocation = &domain.Location{Type: "Point", Coordinates: []float64{lng, lat}}
		require.NoError(t, f.tourSvc.Create(ctx, tour))
	}
	at("The Los Angeles Tour", 34.05, -118.24)
	at("The San Diego Tour", 32.72, -117.16)
	at("The New York City Tour", 40.71, -74.0)
	require.NoError(t, f.tourSvc.Create(ctx, newTour("The Nowhere Tour")))

	names := func(ts []domain.Tour) []string {
		out := make([]string, len(ts))
		for i, tour := range ts {
			out[i] = tour.Name
		}
		return out
	}

	// 洛杉矶到圣迭戈约 180 km
	near, err := f.tourSvc.Within(ctx, "200", "34.1,-118.1", "km")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"The Los Angeles Tour", "The San Diego Tour"}, names(near))

	tight, err := f.tourSvc.Within(ctx, "50", "34.1,-118.1", "mi")
	require.NoError(t, err)
	assert.Equal(t, []string{"The Los Angeles Tour"}, names(tight))

	all, err := f.tourSvc.Within(ctx, "4000", "34.1,-118.1", "mi")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTourListFiltersSortsAndPages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i, name := range []string{"The Cheap Tour One", "The Pricey Tour Two", "The Middle Tour Three", "The Luxury Tour Four"} {
		tour := newTour(name)
		tour.Price = float64(100 * (i + 1))
		require.NoError(t, f.tourSvc.Create(ctx, tour))
	}
	secret := newTour("The Secret Tour Five")
	secret.SecretTour, secret.Price = true, 250
	require.NoError(t, f.tourSvc.Create(ctx, secret))

	ts, spec, err := f.tourSvc.List(ctx, query.Params{"price[gte]": "200", "sort": "-price"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), spec.Skip)
	require.Len(t, ts, 3)
	assert.Equal(t, []float64{400, 300, 200}, []float64{ts[0].Price, ts[1].Price, ts[2].Price})

	ts, _, err = f.tourSvc.List(ctx, query.Params{"sort": "price", "limit": "2", "page": "2"})
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "The Middle Tour Three", ts[0].Name)
	assert.Equal(t, "The Luxury Tour Four", ts[1].Name)

	ts, _, err = f.tourSvc.List(ctx, query.Params{"page": "9", "limit": "2"})
	require.NoError(t, err)
	assert.Empty(t, ts)

	ts, _, err = f.tourSvc.List(ctx, query.Params{"difficulty": "medium"})
	require.NoError(t, err)
	assert.Empty(t, ts)
}

func TestTourDeleteThenGet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tour := newTour("The Park Camper Tour")
	require.NoError(t, f.tourSvc.Create(ctx, tour))
	require.NoError(t, f.tourSvc.Delete(ctx, tour.ID.Hex()))

	_, err := f.tourSvc.Get(ctx, tour.ID.Hex())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	err = f.tourSvc.Delete(ctx, tour.ID.Hex())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func user(role string) *domain.User {
	return &domain.User{ID: primitive.NewObjectID(), Name: role, Role: role}
}

func TestReviewWritesKeepTourRatingsInSync(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tour := newTour("The City Wanderer")
	require.NoError(t, f.tourSvc.Create(ctx, tour))

	alice, bob, carol := user(domain.RoleUser), user(domain.RoleUser), user(domain.RoleUser)
	ra := &domain.Review{Text: "Great", Rating: 5}
	require.NoError(t, f.revSvc.Create(ctx, tour.ID.Hex(), alice, ra))
	require.NoError(t, f.revSvc.Create(ctx, tour.ID.Hex(), bob, &domain.Review{Text: "Fine", Rating: 4}))
	require.NoError(t, f.revSvc.Create(ctx, tour.ID.Hex(), carol, &domain.Review{Text: "Meh", Rating: 2}))

	q, avg := f.ratingsOf(t, tour.ID)
	assert.Equal(t, 3, q)
	assert.Equal(t, 3.7, avg)

	_, err := f.revSvc.Update(ctx, ra.ID.Hex(), alice, []byte(`{"rating":1}`))
	require.NoError(t, err)
	q, avg = f.ratingsOf(t, tour.ID)
	assert.Equal(t, 3, q)
	assert.Equal(t, 2.3, avg)

	require.NoError(t, f.revSvc.Delete(ctx, ra.ID.Hex(), alice))
	q, avg = f.ratingsOf(t, tour.ID)
	assert.Equal(t, 2, q)
	assert.Equal(t, 3.0, avg)
}

func TestReviewLastDeleteResetsRatings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tour := newTour("The Northern Lights")
	require.NoError(t, f.tourSvc.Create(ctx, tour))
	me := user(domain.RoleUser)
	r := &domain.Review{Text: "Cold", Rating: 1}
	require.NoError(t, f.revSvc.Create(ctx, tour.ID.Hex(), me, r))
	require.NoError(t, f.revSvc.Delete(ctx, r.ID.Hex(), me))

	q, avg := f.ratingsOf(t, tour.ID)
	assert.Equal(t, 0, q)
	assert.Equal(t, 4.5, avg)
}

func TestReviewDuplicateLeavesRatingsUntouched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tour := newTour("The Wine Taster Tour")
	require.NoError(t, f.tourSvc.Create(ctx, tour))
	me := user(domain.RoleUser)
	require.NoError(t, f.revSvc.Create(ctx, tour.ID.Hex(), me, &domain.Review{Text: "Good", Rating: 4}))

	err := f.revSvc.Create(ctx, tour.ID.Hex(), me, &domain.Review{Text: "Again", Rating: 1})
	assert.Equal(t, apperr.KindDuplicate, apperr.KindOf(err))
	q, avg := f.ratingsOf(t, tour.ID)
	assert.Equal(t, 1, q)
	assert.Equal(t, 4.0, avg)
}

func TestReviewCreateForcesAuthorAndChecksTour(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tour := newTour("The Sports Lover Tour")
	require.NoError(t, f.tourSvc.Create(ctx, tour))

	me, other := user(domain.RoleUser), user(domain.RoleUser)
	r := &domain.Review{Text: "Spoofed", Rating: 5, User: other.ID}
	require.NoError(t, f.revSvc.Create(ctx, tour.ID.Hex(), me, r))
	assert.Equal(t, me.ID, r.User)
	assert.Equal(t, tour.ID, r.Tour)

	err := f.revSvc.Create(ctx, primitive.NewObjectID().Hex(), me, &domain.Review{Text: "x", Rating: 3})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	err = f.revSvc.Create(ctx, "", me, &domain.Review{Text: "x", Rating: 3})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = f.revSvc.Create(ctx, tour.ID.Hex(), nil, &domain.Review{Text: "x", Rating: 3})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestReviewOwnership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tour := newTour("The Star Gazer Tour")
	require.NoError(t, f.tourSvc.Create(ctx, tour))

	author, stranger, admin := user(domain.RoleUser), user(domain.RoleUser), user(domain.RoleAdmin)
	r := &domain.Review{Text: "Lovely", Rating: 5}
	require.NoError(t, f.revSvc.Create(ctx, tour.ID.Hex(), author, r))

	_, err := f.revSvc.Update(ctx, r.ID.Hex(), stranger, []byte(`{"rating":1}`))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	err = f.revSvc.Delete(ctx, r.ID.Hex(), stranger)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	got, err := f.revSvc.Update(ctx, r.ID.Hex(), admin, []byte(`{"review":"Edited","user":"`+stranger.ID.Hex()+`"}`))
	require.NoError(t, err)
	assert.Equal(t, "Edited", got.Text)
	assert.Equal(t, author.ID, got.User)
	require.NoError(t, f.revSvc.Delete(ctx, r.ID.Hex(), admin))
}

func TestReviewListByTour(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, b := newTour("The First Tour Name"), newTour("The Second Tour Name")
	require.NoError(t, f.tourSvc.Create(ctx, a))
	require.NoError(t, f.tourSvc.Create(ctx, b))
	me := user(domain.RoleUser)
	require.NoError(t, f.revSvc.Create(ctx, a.ID.Hex(), me, &domain.Review{Text: "a", Rating: 5}))
	require.NoError(t, f.revSvc.Create(ctx, b.ID.Hex(), me, &domain.Review{Text: "b", Rating: 3}))

	rs, _, err := f.revSvc.List(ctx, a.ID.Hex(), nil)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "a", rs[0].Text)

	all, _, err := f.revSvc.List(ctx, "", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, _, err = f.revSvc.List(ctx, "nope", nil)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestReviewWritesInvalidateAnalytics(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tour := newTour("The Desert Rider Tour")
	require.NoError(t, f.tourSvc.Create(ctx, tour))
	me := user(domain.RoleUser)

	r := &domain.Review{Text: "Hot", Rating: 5}
	require.NoError(t, f.revSvc.Create(ctx, tour.ID.Hex(), me, r))
	assert.Equal(t, 1, f.invalidated.count())

	_, err := f.revSvc.Update(ctx, r.ID.Hex(), me, []byte(`{"rating":4}`))
	require.NoError(t, err)
	assert.Equal(t, 2, f.invalidated.count())

	require.NoError(t, f.revSvc.Delete(ctx, r.ID.Hex(), me))
	assert.Equal(t, []string{analyticsPrefix, analyticsPrefix, analyticsPrefix}, f.invalidated.seen)

	// 失败的写入不清缓存
	err = f.revSvc.Create(ctx, tour.ID.Hex(), me, &domain.Review{Text: "bad", Rating: 0})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 3, f.invalidated.count())
}

func TestReviewWriteRefreshesStats(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tour := newTour("The Medium Review Tour")
	tour.Difficulty = domain.DifficultyMedium
	require.NoError(t, f.tourSvc.Create(ctx, tour))

	st, err := f.tourSvc.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, st, 1)
	assert.InDelta(t, 4.5, st[0].AvgRating, 1e-9)

	// 一条低分评论把路线拉出统计范围
	require.NoError(t, f.revSvc.Create(ctx, tour.ID.Hex(), user(domain.RoleUser), &domain.Review{Text: "Poor", Rating: 2}))
	st, err = f.tourSvc.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, st)
}
