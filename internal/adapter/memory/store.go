// Package memory is an in-process store used by tests and by local runs
// without DATABASE_URL.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/MeshkovD/star-burger/internal/domain"
)

// Store implements matching.Store and domain.PlaceCache in memory.
type Store struct {
	mu          sync.Mutex
	products    map[int64]domain.Product
	restaurants map[int64]domain.Restaurant
	orders      map[int64]domain.Order
	places      map[string]domain.Place
	nextOrderID int64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		products:    make(map[int64]domain.Product),
		restaurants: make(map[int64]domain.Restaurant),
		orders:      make(map[int64]domain.Order),
		places:      make(map[string]domain.Place),
		nextOrderID: 1,
	}
}

// Seed is the JSON fixture format accepted by LoadSeedFile.
type Seed struct {
	Products    []domain.Product `json:"products"`
	Restaurants []struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		Address      string `json:"address"`
		ContactPhone string `json:"contact_phone"`
		Menu         []struct {
			Product   int64 `json:"product"`
			Available bool  `json:"available"`
		} `json:"menu"`
	} `json:"restaurants"`
}

// LoadSeedFile reads products and restaurants from a JSON fixture.
func (s *Store) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	for _, p := range seed.Products {
		s.AddProduct(p)
	}
	for _, r := range seed.Restaurants {
		restaurant := domain.Restaurant{
			ID:           r.ID,
			Name:         r.Name,
			Address:      r.Address,
			ContactPhone: r.ContactPhone,
		}
		for _, m := range r.Menu {
			restaurant.Menu = append(restaurant.Menu, domain.MenuItem{ProductID: m.Product, Available: m.Available})
		}
		s.AddRestaurant(restaurant)
	}
	return nil
}

// AddProduct inserts or replaces a product.
func (s *Store) AddProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// AddRestaurant inserts or replaces a restaurant with its menu.
func (s *Store) AddRestaurant(r domain.Restaurant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Menu = slices.Clone(r.Menu)
	s.restaurants[r.ID] = r
}

// AddOrder inserts or replaces an order as-is, bypassing validation.
func (s *Store) AddOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Status == "" {
		o.Status = domain.StatusNew
	}
	o.Items = slices.Clone(o.Items)
	s.orders[o.ID] = o
	if o.ID >= s.nextOrderID {
		s.nextOrderID = o.ID + 1
	}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// UnprocessedOrders returns all non-completed orders by id.
func (s *Store) UnprocessedOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.Status != domain.StatusCompleted {
			o.Items = slices.Clone(o.Items)
			orders = append(orders, o)
		}
	}
	slices.SortFunc(orders, func(a, b domain.Order) int { return cmp.Compare(a.ID, b.ID) })
	return orders, nil
}

// Restaurants returns all restaurants with menus by id.
func (s *Store) Restaurants(_ context.Context) ([]domain.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restaurants := make([]domain.Restaurant, 0, len(s.restaurants))
	for _, r := range s.restaurants {
		r.Menu = slices.Clone(r.Menu)
		restaurants = append(restaurants, r)
	}
	slices.SortFunc(restaurants, func(a, b domain.Restaurant) int { return cmp.Compare(a.ID, b.ID) })
	return restaurants, nil
}

// Order returns one order or domain.ErrOrderNotFound.
func (s *Store) Order(_ context.Context, id int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

// UpdateOrder applies a lifecycle transition.
func (s *Store) UpdateOrder(_ context.Context, u domain.OrderUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[u.OrderID]
	if !ok {
		return fmt.Errorf("order %d: %w", u.OrderID, domain.ErrOrderNotFound)
	}
	o.Status = u.Status
	if u.RestaurantID != nil {
		id := *u.RestaurantID
		o.RestaurantID = &id
	}
	if u.DeliveredAt != nil {
		at := *u.DeliveredAt
		o.DeliveredAt = &at
	}
	s.orders[o.ID] = o
	return nil
}

// CreateOrder stores a validated submission, snapshotting product prices.
// Nothing is stored when a product is unknown.
func (s *Store) CreateOrder(_ context.Context, n domain.NewOrder, registeredAt time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.OrderItem, 0, len(n.Items))
	for _, it := range n.Items {
		p, ok := s.products[it.ProductID]
		if !ok {
			return domain.Order{}, &domain.UnknownProductError{ProductID: it.ProductID}
		}
		items = append(items, domain.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: p.Price})
	}

	o := domain.Order{
		ID:           s.nextOrderID,
		Firstname:    n.Firstname,
		Lastname:     n.Lastname,
		Phonenumber:  n.Phonenumber,
		Address:      n.Address,
		Status:       domain.StatusNew,
		RegisteredAt: registeredAt,
		Items:        items,
	}
	s.nextOrderID++
	s.orders[o.ID] = o
	return o, nil
}

// AvailableProducts returns products available in at least one menu, by id.
func (s *Store) AvailableProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	available := make(domain.ProductSet)
	for _, r := range s.restaurants {
		for id := range domain.AvailableProducts(r.Menu) {
			available[id] = struct{}{}
		}
	}

	products := make([]domain.Product, 0, len(available))
	for id := range available {
		if p, ok := s.products[id]; ok {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return cmp.Compare(a.ID, b.ID) })
	return products, nil
}

// GetPlace implements domain.PlaceCache.
func (s *Store) GetPlace(_ context.Context, address string) (domain.Place, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.places[address]
	return p, ok, nil
}

// PutPlace implements domain.PlaceCache.
func (s *Store) PutPlace(_ context.Context, place domain.Place) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[place.Address] = place
	return nil
}
