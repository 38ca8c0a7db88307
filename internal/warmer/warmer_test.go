package warmer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MeshkovD/star-burger/internal/domain"
	"github.com/MeshkovD/star-burger/internal/observability"
	"github.com/MeshkovD/star-burger/internal/warmer"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSource struct {
	mu          sync.Mutex
	orders      []domain.Order
	restaurants []domain.Restaurant
	err         error
	calls       int
}

func (m *mockSource) UnprocessedOrders(context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders, m.err
}

func (m *mockSource) Restaurants(context.Context) ([]domain.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.restaurants, m.err
}

func (m *mockSource) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type mockResolver struct {
	mu       sync.Mutex
	known    map[string]bool
	err      error
	resolved []string
}

func (m *mockResolver) Resolve(_ context.Context, address string) (domain.Point, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Point{}, false, m.err
	}
	m.resolved = append(m.resolved, address)
	return domain.Point{Lat: 55.75, Lng: 37.61}, m.known[address], nil
}

func (m *mockResolver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resolved)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource() *mockSource {
	return &mockSource{
		restaurants: []domain.Restaurant{
			{ID: 1, Address: "Москва, Арбат 1"},
			{ID: 2, Address: "Москва, Таганская 31"},
		},
		orders: []domain.Order{
			{ID: 1, Address: "Москва, Тверская 7"},
			{ID: 2, Address: " Москва,  Тверская 7 "},
			{ID: 3, Address: "Москва, Арбат 1"},
			{ID: 4, Address: ""},
		},
	}
}

// --- tests ---

func TestPass_ResolvesDistinctAddresses(t *testing.T) {
	res := &mockResolver{known: map[string]bool{"Москва, Арбат 1": true, "Москва, Тверская 7": true}}
	metrics := observability.NewMetricsForTesting()
	w := warmer.New(testSource(), res, clockwork.NewFakeClock(), time.Minute, discardLogger(), metrics)

	resolved, err := w.Pass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, resolved)
	assert.Equal(t, []string{"Москва, Арбат 1", "Москва, Таганская 31", "Москва, Тверская 7"}, res.resolved)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WarmerPasses.WithLabelValues("success")))
}

func TestPass_SourceError(t *testing.T) {
	src := testSource()
	src.err = errors.New("connection refused")
	metrics := observability.NewMetricsForTesting()
	w := warmer.New(src, &mockResolver{}, clockwork.NewFakeClock(), time.Minute, discardLogger(), metrics)

	_, err := w.Pass(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WarmerPasses.WithLabelValues("error")))
}

func TestPass_ResolverError(t *testing.T) {
	res := &mockResolver{err: errors.New("put place: disk full")}
	w := warmer.New(testSource(), res, clockwork.NewFakeClock(), time.Minute, discardLogger(), observability.NewMetricsForTesting())

	_, err := w.Pass(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestRun_PassEveryInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	res := &mockResolver{}
	w := warmer.New(testSource(), res, clock, time.Minute, discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 3, res.count())

	clock.Advance(time.Minute)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 6, res.count())

	cancel()
	assert.NoError(t, <-done)
}

func TestRun_BacksOffAfterFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := testSource()
	src.setErr(errors.New("connection refused"))
	res := &mockResolver{}
	w := warmer.New(src, res, clock, time.Minute, discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	src.setErr(nil)

	// The retry fires after the first backoff step, well before the interval.
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 3, res.count())

	cancel()
	assert.NoError(t, <-done)
}

func TestRun_DisabledWithZeroInterval(t *testing.T) {
	src := testSource()
	w := warmer.New(src, &mockResolver{}, clockwork.NewFakeClock(), 0, discardLogger(), observability.NewMetricsForTesting())

	assert.NoError(t, w.Run(context.Background()))
	assert.Zero(t, src.calls)
}
