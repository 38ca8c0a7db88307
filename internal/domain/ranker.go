package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// CoordinateResolver resolves addresses to coordinates. It is implemented by
// [Resolver].
type CoordinateResolver interface {
	Resolve(ctx context.Context, address string) (Point, bool, error)
}

// Ranker orders the restaurants able to cook an order by delivery distance.
type Ranker struct {
	resolver CoordinateResolver
	logger   *slog.Logger
}

// NewRanker creates a Ranker backed by resolver.
func NewRanker(resolver CoordinateResolver, logger *slog.Logger) *Ranker {
	return &Ranker{resolver: resolver, logger: logger}
}

// Rank returns the candidates for order, nearest first. Restaurants that
// cannot cook every product are dropped; restaurants with an unresolvable
// address are kept as [Unreachable] and sort last.
func (r *Ranker) Rank(ctx context.Context, order Order, restaurants []Restaurant) ([]Candidate, error) {
	delivery, ok, err := r.resolver.Resolve(ctx, order.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve order %d address: %w", order.ID, err)
	}
	if !ok {
		r.logger.Warn("order address unresolvable", "order_id", order.ID, "address", order.Address)
		return []Candidate{Unreachable{Label: AddressErrorLabel}}, nil
	}

	products := OrderProducts(order.Items)
	candidates := make([]Candidate, 0, len(restaurants))
	for _, restaurant := range restaurants {
		if !IsEligible(products, AvailableProducts(restaurant.Menu)) {
			continue
		}

		point, ok, err := r.resolver.Resolve(ctx, restaurant.Address)
		if err != nil {
			return nil, fmt.Errorf("resolve restaurant %d address: %w", restaurant.ID, err)
		}
		if !ok {
			r.logger.Warn("restaurant address unresolvable",
				"order_id", order.ID,
				"restaurant_id", restaurant.ID,
				"address", restaurant.Address,
			)
			candidates = append(candidates, unreachableRestaurant(restaurant))
			continue
		}

		candidates = append(candidates, Eligible{
			RestaurantID: restaurant.ID,
			Name:         restaurant.Name,
			DistanceKm:   Distance(delivery, point),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance() < candidates[j].Distance()
	})
	return candidates, nil
}
