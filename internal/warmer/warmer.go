// Package warmer pre-resolves the addresses that the next manager report
// will need, so that rendering the report rarely waits on the geocoder.
package warmer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeshkovD/star-burger/internal/domain"
	"github.com/MeshkovD/star-burger/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Source lists the orders and restaurants whose addresses should be warm.
type Source interface {
	UnprocessedOrders(ctx context.Context) ([]domain.Order, error)
	Restaurants(ctx context.Context) ([]domain.Restaurant, error)
}

// Warmer periodically resolves every distinct address of unprocessed orders
// and restaurants through the coordinate resolver.
type Warmer struct {
	source   Source
	resolver domain.CoordinateResolver
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Warmer that runs one pass every interval.
func New(source Source, resolver domain.CoordinateResolver, clock clockwork.Clock, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Warmer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Warmer{
		source:   source,
		resolver: resolver,
		clock:    clock,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run executes warm-up passes until the context is cancelled. A failed pass
// is retried with exponential backoff capped at the interval.
func (w *Warmer) Run(ctx context.Context) error {
	if w.interval <= 0 {
		w.logger.Info("address warmer disabled")
		return nil
	}
	w.logger.Info("address warmer started", "interval", w.interval)

	backoff := initialBackoff
	for {
		wait := w.interval
		if _, err := w.Pass(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error("address warm-up failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, w.interval)
		} else {
			backoff = initialBackoff
		}

		if !w.sleep(ctx, wait) {
			break
		}
	}

	w.logger.Info("address warmer stopping", "reason", ctx.Err())
	return nil
}

// Pass resolves each distinct address once and returns how many resolved.
// Unresolvable addresses are not errors; only storage failures are.
func (w *Warmer) Pass(ctx context.Context) (int, error) {
	addresses, err := w.addresses(ctx)
	if err != nil {
		w.metrics.WarmerPasses.WithLabelValues("error").Inc()
		return 0, err
	}

	resolved := 0
	for _, address := range addresses {
		_, ok, err := w.resolver.Resolve(ctx, address)
		if err != nil {
			w.metrics.WarmerPasses.WithLabelValues("error").Inc()
			return resolved, fmt.Errorf("resolve %q: %w", address, err)
		}
		if ok {
			resolved++
		}
	}

	w.metrics.WarmerPasses.WithLabelValues("success").Inc()
	w.logger.Debug("address warm-up pass complete", "addresses", len(addresses), "resolved", resolved)
	return resolved, nil
}

// addresses returns the normalized addresses to warm, restaurants first,
// without duplicates.
func (w *Warmer) addresses(ctx context.Context) ([]string, error) {
	restaurants, err := w.source.Restaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load restaurants: %w", err)
	}
	orders, err := w.source.UnprocessedOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load unprocessed orders: %w", err)
	}

	seen := make(map[string]bool, len(restaurants)+len(orders))
	addresses := make([]string, 0, len(restaurants)+len(orders))
	add := func(address string) {
		address = domain.NormalizeAddress(address)
		if address == "" || seen[address] {
			return
		}
		seen[address] = true
		addresses = append(addresses, address)
	}
	for _, r := range restaurants {
		add(r.Address)
	}
	for _, o := range orders {
		add(o.Address)
	}
	return addresses, nil
}

func (w *Warmer) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := w.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

const initialBackoff = time.Second

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
