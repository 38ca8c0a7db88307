package matching

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/MeshkovD/star-burger/internal/domain"
	"github.com/MeshkovD/star-burger/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

// Store is the persistence collaborator of the matching service.
type Store interface {
	// UnprocessedOrders returns every non-completed order with its items.
	UnprocessedOrders(ctx context.Context) ([]domain.Order, error)
	// Restaurants returns every restaurant with its menu preloaded.
	Restaurants(ctx context.Context) ([]domain.Restaurant, error)
	// Order returns one order, or an error wrapping domain.ErrOrderNotFound.
	Order(ctx context.Context, id int64) (domain.Order, error)
	// UpdateOrder persists a lifecycle transition.
	UpdateOrder(ctx context.Context, update domain.OrderUpdate) error
	// CreateOrder stores the order and its items atomically, snapshotting
	// product prices. Unknown products wrap domain.ErrUnknownProduct.
	CreateOrder(ctx context.Context, order domain.NewOrder, registeredAt time.Time) (domain.Order, error)
	// AvailableProducts returns products available in at least one menu.
	AvailableProducts(ctx context.Context) ([]domain.Product, error)
	Ping(ctx context.Context) error
}

// Ranker ranks restaurants for one order. It is implemented by domain.Ranker.
type Ranker interface {
	Rank(ctx context.Context, order domain.Order, restaurants []domain.Restaurant) ([]domain.Candidate, error)
}

// EventPublisher announces order state changes.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.OrderEvent) error { return nil }

// OrderReport is one row of the manager report.
type OrderReport struct {
	ID           int64              `json:"id"`
	Status       domain.OrderStatus `json:"status"`
	Cost         decimal.Decimal    `json:"cost"`
	Customer     string             `json:"customer"`
	Phonenumber  string             `json:"phonenumber"`
	Address      string             `json:"address"`
	Comment      string             `json:"comment,omitempty"`
	RestaurantID *int64             `json:"restaurant_id,omitempty"`
	Restaurants  []string           `json:"restaurants"`
}

// Service matches unprocessed orders to restaurants and drives the order lifecycle.
type Service struct {
	store     Store
	ranker    Ranker
	publisher EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Service. A nil publisher drops events; a nil clock uses real time.
func New(store Store, ranker Ranker, publisher EventPublisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:     store,
		ranker:    ranker,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness reports whether the store is reachable.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	return nil
}

// MatchAll ranks restaurants for each order. Addresses shared between orders
// are deduplicated by the coordinate cache behind the ranker, not here.
func (s *Service) MatchAll(ctx context.Context, orders []domain.Order, restaurants []domain.Restaurant) (map[int64][]domain.Candidate, error) {
	start := s.clock.Now()
	s.metrics.MatchRuns.Inc()

	matches := make(map[int64][]domain.Candidate, len(orders))
	for _, order := range orders {
		candidates, err := s.ranker.Rank(ctx, order, restaurants)
		if err != nil {
			return nil, fmt.Errorf("rank order %d: %w", order.ID, err)
		}
		s.countCandidates(candidates)
		matches[order.ID] = candidates
	}

	s.metrics.OrdersMatched.Add(float64(len(orders)))
	s.metrics.MatchDuration.Observe(s.clock.Since(start).Seconds())
	return matches, nil
}

func (s *Service) countCandidates(candidates []domain.Candidate) {
	for _, c := range candidates {
		switch c.(type) {
		case domain.Eligible:
			s.metrics.Candidates.WithLabelValues("eligible").Inc()
		case domain.Unreachable:
			s.metrics.Candidates.WithLabelValues("unreachable").Inc()
		}
	}
}

// Report loads unprocessed orders and restaurants and returns the ranked
// report, new orders first.
func (s *Service) Report(ctx context.Context) ([]OrderReport, error) {
	orders, err := s.store.UnprocessedOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load unprocessed orders: %w", err)
	}
	restaurants, err := s.store.Restaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load restaurants: %w", err)
	}

	matches, err := s.MatchAll(ctx, orders, restaurants)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		if c := cmp.Compare(a.Status.Priority(), b.Status.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	report := make([]OrderReport, 0, len(orders))
	for _, o := range orders {
		rendered := make([]string, 0, len(matches[o.ID]))
		for _, c := range matches[o.ID] {
			rendered = append(rendered, c.String())
		}
		report = append(report, OrderReport{
			ID:           o.ID,
			Status:       o.Status,
			Cost:         o.Cost(),
			Customer:     o.Firstname + " " + o.Lastname,
			Phonenumber:  o.Phonenumber,
			Address:      o.Address,
			Comment:      o.Comment,
			RestaurantID: o.RestaurantID,
			Restaurants:  rendered,
		})
	}
	return report, nil
}

// Candidates ranks restaurants for a single order.
func (s *Service) Candidates(ctx context.Context, orderID int64) ([]domain.Candidate, error) {
	order, err := s.store.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	restaurants, err := s.store.Restaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load restaurants: %w", err)
	}
	return s.ranker.Rank(ctx, order, restaurants)
}

// Assign sends an order to a restaurant that can cook every product on it and
// moves the order to in-progress. Distance does not matter: a restaurant with
// an unresolvable address may still be chosen.
func (s *Service) Assign(ctx context.Context, orderID, restaurantID int64) (domain.Order, error) {
	order, err := s.store.Order(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	status, err := domain.AssignTransition(order.Status)
	if err != nil {
		return domain.Order{}, err
	}

	restaurants, err := s.store.Restaurants(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load restaurants: %w", err)
	}
	i := slices.IndexFunc(restaurants, func(r domain.Restaurant) bool { return r.ID == restaurantID })
	if i < 0 || !domain.IsEligible(domain.OrderProducts(order.Items), domain.AvailableProducts(restaurants[i].Menu)) {
		return domain.Order{}, fmt.Errorf("order %d, restaurant %d: %w", orderID, restaurantID, domain.ErrRestaurantNotEligible)
	}

	update := domain.OrderUpdate{OrderID: orderID, Status: status, RestaurantID: &restaurantID}
	if err := s.store.UpdateOrder(ctx, update); err != nil {
		return domain.Order{}, fmt.Errorf("update order %d: %w", orderID, err)
	}

	order.Status = status
	order.RestaurantID = &restaurantID
	s.logger.Info("order assigned", "order_id", orderID, "restaurant_id", restaurantID)
	s.publish(ctx, domain.EventOrderAssigned, order)
	return order, nil
}

// Complete marks an order delivered.
func (s *Service) Complete(ctx context.Context, orderID int64) (domain.Order, error) {
	order, err := s.store.Order(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	status, err := domain.CompleteTransition(order.Status)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock.Now().UTC()
	if err := s.store.UpdateOrder(ctx, domain.OrderUpdate{OrderID: orderID, Status: status, DeliveredAt: &now}); err != nil {
		return domain.Order{}, fmt.Errorf("update order %d: %w", orderID, err)
	}

	order.Status = status
	order.DeliveredAt = &now
	s.logger.Info("order completed", "order_id", orderID)
	s.publish(ctx, domain.EventOrderCompleted, order)
	return order, nil
}

// RegisterOrder validates and stores a customer order.
func (s *Service) RegisterOrder(ctx context.Context, n domain.NewOrder) (domain.Order, error) {
	n.Phonenumber = domain.NormalizePhone(n.Phonenumber)
	if err := n.Validate(); err != nil {
		return domain.Order{}, err
	}

	order, err := s.store.CreateOrder(ctx, n, s.clock.Now().UTC())
	if err != nil {
		var unknown *domain.UnknownProductError
		if errors.As(err, &unknown) {
			verr := &domain.ValidationError{}
			verr.Add("products", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", unknown.ProductID))
			return domain.Order{}, verr
		}
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.metrics.OrdersRegistered.Inc()
	s.logger.Info("order registered", "order_id", order.ID, "items", len(order.Items))
	s.publish(ctx, domain.EventOrderRegistered, order)
	return order, nil
}

// Products returns the products currently orderable from some restaurant.
func (s *Service) Products(ctx context.Context) ([]domain.Product, error) {
	products, err := s.store.AvailableProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return products, nil
}

// publish is best effort: a lost event never fails the request.
func (s *Service) publish(ctx context.Context, eventType string, order domain.Order) {
	event := domain.OrderEvent{
		Type:         eventType,
		OrderID:      order.ID,
		Status:       order.Status,
		RestaurantID: order.RestaurantID,
		OccurredAt:   s.clock.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.EventPublishErrors.Inc()
		s.logger.Warn("publish order event failed", "event_type", eventType, "order_id", order.ID, "error", err)
	}
}
