package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MeshkovD/star-burger/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// placeholderAddresses are values that stand for "no address" and are never
// sent to the geocoder.
var placeholderAddresses = map[string]bool{
	"":     true,
	"-":    true,
	"None": true,
}

// NormalizeAddress trims an address and collapses inner whitespace. It is the
// key of the coordinate cache.
func NormalizeAddress(address string) string {
	return strings.Join(strings.Fields(address), " ")
}

// sharedLookupTimeout bounds a collapsed resolution, which outlives the
// caller that started it.
const sharedLookupTimeout = 30 * time.Second

// Resolver turns addresses into coordinates, cache first.
type Resolver struct {
	cache    PlaceCache
	geocoder Geocoder
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	// inflight collapses concurrent resolutions of the same address.
	inflight singleflight.Group
	pending  sync.WaitGroup
}

// NewResolver creates a Resolver. A nil geocoder disables network lookups:
// only cached coordinates are returned.
func NewResolver(cache PlaceCache, geocoder Geocoder, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{
		cache:    cache,
		geocoder: geocoder,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

type resolution struct {
	point Point
	ok    bool
}

// Resolve returns the coordinates of address. ok is false when the address is
// a placeholder or cannot be geocoded. The error is non-nil when the cache
// itself fails or ctx is done before the lookup finishes.
//
// Concurrent calls for one address share a lookup that is detached from any
// single caller's cancellation, so one caller leaving never changes the
// outcome seen by the others.
func (r *Resolver) Resolve(ctx context.Context, address string) (Point, bool, error) {
	address = NormalizeAddress(address)
	if placeholderAddresses[address] {
		return Point{}, false, nil
	}

	r.pending.Add(1)
	shared := r.inflight.DoChan(address, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()
		return r.resolve(lookupCtx, address)
	})
	done := make(chan singleflight.Result, 1)
	go func() {
		defer r.pending.Done()
		done <- <-shared
	}()

	select {
	case <-ctx.Done():
		return Point{}, false, ctx.Err()
	case result := <-done:
		if result.Err != nil {
			return Point{}, false, result.Err
		}
		res := result.Val.(resolution)
		return res.point, res.ok, nil
	}
}

// Wait blocks until every lookup started by Resolve has finished, including
// those whose callers already returned. Call it before closing the cache.
func (r *Resolver) Wait() {
	r.pending.Wait()
}

func (r *Resolver) resolve(ctx context.Context, address string) (resolution, error) {
	place, found, err := r.cache.GetPlace(ctx, address)
	if err != nil {
		return resolution{}, fmt.Errorf("get place %q: %w", address, err)
	}
	if found {
		if p, ok := place.Point(); ok {
			r.metrics.CoordinateCache.WithLabelValues("hit").Inc()
			return resolution{point: p, ok: true}, nil
		}
	}
	r.metrics.CoordinateCache.WithLabelValues("miss").Inc()

	if r.geocoder == nil {
		return resolution{}, nil
	}

	point, ok := r.geocode(ctx, address)

	entry := Place{Address: address, RequestDate: truncateToDate(r.clock.Now())}
	if ok {
		entry.Lat = &point.Lat
		entry.Lng = &point.Lng
	}
	if err := r.cache.PutPlace(ctx, entry); err != nil {
		return resolution{}, fmt.Errorf("put place %q: %w", address, err)
	}
	return resolution{point: point, ok: ok}, nil
}

// geocode calls the provider and folds every provider failure into "no match".
func (r *Resolver) geocode(ctx context.Context, address string) (Point, bool) {
	start := r.clock.Now()
	point, ok, err := r.geocoder.Geocode(ctx, address)
	r.metrics.GeocodeDuration.Observe(r.clock.Since(start).Seconds())

	switch {
	case err != nil:
		r.logger.Warn("geocoding failed", "address", address, "error", err)
		r.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return Point{}, false
	case !ok:
		r.logger.Info("geocoder found no match", "address", address)
		r.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return Point{}, false
	default:
		r.metrics.GeocodeRequests.WithLabelValues("success").Inc()
		return point, true
	}
}

func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
