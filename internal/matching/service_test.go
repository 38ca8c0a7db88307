package matching_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MeshkovD/star-burger/internal/adapter/memory"
	"github.com/MeshkovD/star-burger/internal/domain"
	"github.com/MeshkovD/star-burger/internal/matching"
	"github.com/MeshkovD/star-burger/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mapGeocoder map[string]domain.Point

func (m mapGeocoder) Geocode(_ context.Context, address string) (domain.Point, bool, error) {
	p, ok := m[address]
	return p, ok, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type failingStore struct {
	*memory.Store
	err error
}

func (f failingStore) Restaurants(context.Context) ([]domain.Restaurant, error) { return nil, f.err }

var now = time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	publisher *recordingPublisher
	metrics   *observability.Metrics
	svc       *matching.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	seed(store)

	geo := mapGeocoder{
		"Москва, Тверская 7":   {Lat: 55.75, Lng: 37.61},
		"Москва, Арбат 1":      {Lat: 55.76, Lng: 37.60},
		"Москва, Таганская 31": {Lat: 55.74, Lng: 37.66},
	}
	clock := clockwork.NewFakeClockAt(now)
	metrics := observability.NewMetricsForTesting()
	resolver := domain.NewResolver(store, geo, clock, logger, metrics)
	ranker := domain.NewRanker(resolver, logger)
	publisher := &recordingPublisher{}

	return &fixture{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		svc:       matching.New(store, ranker, publisher, clock, logger, metrics),
	}
}

func seed(s *memory.Store) {
	s.AddProduct(domain.Product{ID: 1, Name: "Чизбургер", Price: decimal.RequireFromString("189")})
	s.AddProduct(domain.Product{ID: 2, Name: "Картофель фри", Price: decimal.RequireFromString("99.5")})
	s.AddProduct(domain.Product{ID: 3, Name: "Молочный коктейль", Price: decimal.RequireFromString("149")})

	s.AddRestaurant(domain.Restaurant{ID: 1, Name: "Star Burger Таганка", Address: "Москва, Таганская 31", Menu: []domain.MenuItem{
		{ProductID: 1, Available: true}, {ProductID: 2, Available: true}, {ProductID: 3, Available: true},
	}})
	s.AddRestaurant(domain.Restaurant{ID: 2, Name: "Star Burger Арбат", Address: "Москва, Арбат 1", Menu: []domain.MenuItem{
		{ProductID: 1, Available: true}, {ProductID: 2, Available: true},
	}})
	s.AddRestaurant(domain.Restaurant{ID: 3, Name: "Star Burger Потерянный", Address: "нигде", Menu: []domain.MenuItem{
		{ProductID: 1, Available: true}, {ProductID: 2, Available: true}, {ProductID: 3, Available: true},
	}})
}

func item(product int64, qty int, price string) domain.OrderItem {
	return domain.OrderItem{ProductID: product, Quantity: qty, Price: decimal.RequireFromString(price)}
}

// --- tests ---

func TestReport_RanksAndOrders(t *testing.T) {
	f := newFixture(t)
	f.store.AddOrder(domain.Order{
		ID: 1, Firstname: "Анна", Lastname: "Смирнова", Phonenumber: "+79160000001",
		Address: "Москва, Тверская 7", Status: domain.StatusInProgress,
		Items: []domain.OrderItem{item(3, 1, "149")},
	})
	f.store.AddOrder(domain.Order{
		ID: 2, Firstname: "Иван", Lastname: "Петров", Phonenumber: "+79160000002",
		Address: "Москва, Тверская 7", Status: domain.StatusNew,
		Items: []domain.OrderItem{item(1, 2, "189"), item(2, 1, "99.5")},
	})
	f.store.AddOrder(domain.Order{
		ID: 3, Firstname: "Пётр", Lastname: "Иванов", Address: "абракадабра", Status: domain.StatusNew,
		Items: []domain.OrderItem{item(1, 1, "189")},
	})
	f.store.AddOrder(domain.Order{ID: 4, Address: "Москва, Тверская 7", Status: domain.StatusCompleted})

	report, err := f.svc.Report(context.Background())
	require.NoError(t, err)
	require.Len(t, report, 3)

	ids := []int64{report[0].ID, report[1].ID, report[2].ID}
	assert.Equal(t, []int64{2, 3, 1}, ids, "new orders first, then in progress")

	assert.True(t, decimal.RequireFromString("477.5").Equal(report[0].Cost))
	assert.Equal(t, "Иван Петров", report[0].Customer)
	require.Len(t, report[0].Restaurants, 3)
	assert.Regexp(t, `^Star Burger Арбат, 1\.2\d+ км\.$`, report[0].Restaurants[0])
	assert.Regexp(t, `^Star Burger Таганка, \d+\.\d+ км\.$`, report[0].Restaurants[1])
	assert.Equal(t, "Star Burger Потерянный (ошибка определения координат), -", report[0].Restaurants[2])

	if diff := cmp.Diff([]string{"Ошибка определения координат, -"}, report[1].Restaurants); diff != "" {
		t.Errorf("unresolvable order candidates mismatch (-want +got):\n%s", diff)
	}

	// Only Таганка and the restaurant with the broken address sell milkshakes.
	require.Len(t, report[2].Restaurants, 2)
	assert.Regexp(t, `^Star Burger Таганка, `, report[2].Restaurants[0])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MatchRuns))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.OrdersMatched))
}

func TestReport_EmptyStore(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.Report(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestReport_StoreErrorPropagates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storeErr := errors.New("connection reset")
	store := failingStore{Store: memory.NewStore(), err: storeErr}
	svc := matching.New(store, domain.NewRanker(nil, logger), nil, nil, logger, observability.NewMetricsForTesting())

	_, err := svc.Report(context.Background())
	assert.ErrorIs(t, err, storeErr)
}

func TestMatchAll_RepeatedAddressGeocodedOnce(t *testing.T) {
	f := newFixture(t)
	orders := []domain.Order{
		{ID: 1, Address: "Москва, Тверская 7", Items: []domain.OrderItem{item(1, 1, "189")}},
		{ID: 2, Address: "Москва,  Тверская 7", Items: []domain.OrderItem{item(2, 1, "99.5")}},
	}
	restaurants, err := f.store.Restaurants(context.Background())
	require.NoError(t, err)

	matches, err := f.svc.MatchAll(context.Background(), orders, restaurants)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	// Resolved addresses are geocoded once; the unresolvable one is retried
	// because its cache entry has no coordinates.
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.GeocodeRequests.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.GeocodeRequests.WithLabelValues("empty")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.CoordinateCache.WithLabelValues("hit")))
}

func TestCandidates(t *testing.T) {
	f := newFixture(t)
	f.store.AddOrder(domain.Order{ID: 1, Address: "Москва, Тверская 7", Items: []domain.OrderItem{item(3, 1, "149")}})

	candidates, err := f.svc.Candidates(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, int64(1), domain.CandidateRestaurantID(candidates[0]))
	assert.Equal(t, int64(3), domain.CandidateRestaurantID(candidates[1]))

	_, err = f.svc.Candidates(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	f.store.AddOrder(domain.Order{ID: 1, Address: "Москва, Тверская 7", Items: []domain.OrderItem{item(1, 1, "189")}})

	order, err := f.svc.Assign(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, order.Status)

	stored, err := f.store.Order(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, stored.Status)
	require.NotNil(t, stored.RestaurantID)
	assert.Equal(t, int64(2), *stored.RestaurantID)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, domain.EventOrderAssigned, f.publisher.events[0].Type)
	assert.Equal(t, now, f.publisher.events[0].OccurredAt)
}

func TestAssign_RestaurantWithBrokenAddressAllowed(t *testing.T) {
	f := newFixture(t)
	f.store.AddOrder(domain.Order{ID: 1, Address: "абракадабра", Items: []domain.OrderItem{item(3, 1, "149")}})

	_, err := f.svc.Assign(context.Background(), 1, 3)
	assert.NoError(t, err)
}

func TestAssign_Rejections(t *testing.T) {
	f := newFixture(t)
	f.store.AddOrder(domain.Order{ID: 1, Address: "Москва, Тверская 7", Items: []domain.OrderItem{item(3, 1, "149")}})
	f.store.AddOrder(domain.Order{ID: 2, Status: domain.StatusCompleted})

	_, err := f.svc.Assign(context.Background(), 1, 2)
	assert.ErrorIs(t, err, domain.ErrRestaurantNotEligible, "Арбат has no milkshakes")

	_, err = f.svc.Assign(context.Background(), 1, 77)
	assert.ErrorIs(t, err, domain.ErrRestaurantNotEligible)

	_, err = f.svc.Assign(context.Background(), 2, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Assign(context.Background(), 99, 1)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	assert.Empty(t, f.publisher.events)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	f.store.AddOrder(domain.Order{ID: 1, Status: domain.StatusInProgress})

	order, err := f.svc.Complete(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, order.Status)
	require.NotNil(t, order.DeliveredAt)
	assert.Equal(t, now, *order.DeliveredAt)

	unprocessed, err := f.store.UnprocessedOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	_, err = f.svc.Complete(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRegisterOrder(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.RegisterOrder(context.Background(), domain.NewOrder{
		Firstname:   "Иван",
		Lastname:    "Петров",
		Phonenumber: "8 916 123-45-67",
		Address:     "Москва, Тверская 7",
		Items:       []domain.NewOrderItem{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, "+79161234567", order.Phonenumber)
	assert.Equal(t, now, order.RegisteredAt)
	assert.Equal(t, domain.StatusNew, order.Status)
	assert.True(t, decimal.RequireFromString("378").Equal(order.Cost()))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, domain.EventOrderRegistered, f.publisher.events[0].Type)
	assert.Equal(t, order.ID, f.publisher.events[0].OrderID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersRegistered))
}

func TestRegisterOrder_Invalid(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterOrder(context.Background(), domain.NewOrder{
		Firstname: "Иван", Lastname: "Петров", Phonenumber: "+79161234567", Address: "Москва",
	})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"This field is required."}, verr.Fields["products"])
	assert.Empty(t, f.publisher.events)
}

func TestRegisterOrder_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterOrder(context.Background(), domain.NewOrder{
		Firstname: "Иван", Lastname: "Петров", Phonenumber: "+79161234567", Address: "Москва",
		Items: []domain.NewOrderItem{{ProductID: 42, Quantity: 1}},
	})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{`Invalid pk "42" - object does not exist.`}, verr.Fields["products"])
}

func TestRegisterOrder_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker unavailable")

	_, err := f.svc.RegisterOrder(context.Background(), domain.NewOrder{
		Firstname: "Иван", Lastname: "Петров", Phonenumber: "+79161234567", Address: "Москва",
		Items: []domain.NewOrderItem{{ProductID: 1, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventPublishErrors))
}

func TestProducts(t *testing.T) {
	f := newFixture(t)

	products, err := f.svc.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 3)
}

func TestCheckReadiness(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.CheckReadiness(context.Background()))
}
