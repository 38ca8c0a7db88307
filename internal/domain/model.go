package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Point is a WGS-84 latitude/longitude pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a cached address resolution. Lat and Lng are nil when the last
// geocoding attempt found nothing.
type Place struct {
	Address     string
	Lat         *float64
	Lng         *float64
	RequestDate time.Time
}

// Point returns the cached coordinates and whether both are present.
func (p Place) Point() (Point, bool) {
	if p.Lat == nil || p.Lng == nil {
		return Point{}, false
	}
	return Point{Lat: *p.Lat, Lng: *p.Lng}, true
}

// Category groups products in the storefront.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product is a dish that restaurants may list on their menus.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Category      *Category       `json:"category"`
	Price         decimal.Decimal `json:"price"`
	SpecialStatus bool            `json:"special_status"`
	Description   string          `json:"description"`
}

// MenuItem is one product on a restaurant menu.
type MenuItem struct {
	ProductID int64
	Available bool
}

// Restaurant cooks orders. Menu is loaded together with the restaurant.
type Restaurant struct {
	ID           int64
	Name         string
	Address      string
	ContactPhone string
	Menu         []MenuItem
}

// PaymentMethod is how the customer pays on delivery.
type PaymentMethod string

const (
	PaymentUnset      PaymentMethod = ""
	PaymentCash       PaymentMethod = "cash"
	PaymentElectronic PaymentMethod = "electronic"
)

// OrderItem is a line of an order. Price is the product price at the time the
// order was registered.
type OrderItem struct {
	ProductID int64           `json:"product"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Order is a customer order.
type Order struct {
	ID            int64         `json:"id"`
	Firstname     string        `json:"firstname"`
	Lastname      string        `json:"lastname"`
	Phonenumber   string        `json:"phonenumber"`
	Address       string        `json:"address"`
	Status        OrderStatus   `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	Comment       string        `json:"comment,omitempty"`
	RegisteredAt  time.Time     `json:"registered_at"`
	CalledAt      *time.Time    `json:"called_at,omitempty"`
	DeliveredAt   *time.Time    `json:"delivered_at,omitempty"`
	RestaurantID  *int64        `json:"restaurant_id,omitempty"`
	Items         []OrderItem   `json:"products"`
}

// Cost is the sum of quantity times snapshot price over all items.
func (o Order) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// OrderUpdate is a status change produced by a lifecycle transition.
type OrderUpdate struct {
	OrderID      int64
	Status       OrderStatus
	RestaurantID *int64
	DeliveredAt  *time.Time
}

// OrderEvent is published when an order changes state.
type OrderEvent struct {
	Type         string      `json:"event_type"`
	OrderID      int64       `json:"order_id"`
	Status       OrderStatus `json:"status"`
	RestaurantID *int64      `json:"restaurant_id,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// Order event types.
const (
	EventOrderRegistered = "order.registered"
	EventOrderAssigned   = "order.assigned"
	EventOrderCompleted  = "order.completed"
)
