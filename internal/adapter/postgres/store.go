// Package postgres stores products, restaurants, orders, and the coordinate
// cache in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MeshkovD/star-burger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store implements matching.Store and domain.PlaceCache.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open parses databaseURL, applies the pool size, and verifies the connection.
func Open(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// execTx runs fn inside a transaction, rolling back when fn fails.
func (s *Store) execTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %w, rb err: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `id, firstname, lastname, phonenumber, address, status, payment_method,
	comment, registered_at, called_at, delivered_at, restaurant_id`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.Firstname, &o.Lastname, &o.Phonenumber, &o.Address, &o.Status, &o.PaymentMethod,
		&o.Comment, &o.RegisteredAt, &o.CalledAt, &o.DeliveredAt, &o.RestaurantID,
	)
	return o, err
}

// UnprocessedOrders returns every order that is not completed, by id.
func (s *Store) UnprocessedOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status <> $1 ORDER BY id`,
		domain.StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	if err := s.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Order returns one order with its items.
func (s *Store) Order(ctx context.Context, id int64) (domain.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %d: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order %d: %w", id, err)
	}

	orders := []domain.Order{o}
	if err := s.loadItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// loadItems fills the Items of each order with one query.
func (s *Store) loadItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := s.pool.Query(ctx,
		`SELECT order_id, product_id, quantity, price::text FROM order_items
		 WHERE order_id = ANY($1) ORDER BY id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			item    domain.OrderItem
			price   string
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if item.Price, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("parse price of order %d: %w", orderID, err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

// Restaurants returns every restaurant with its menu, by id.
func (s *Store) Restaurants(ctx context.Context) ([]domain.Restaurant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, address, contact_phone FROM restaurants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query restaurants: %w", err)
	}
	restaurants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Restaurant, error) {
		var r domain.Restaurant
		err := row.Scan(&r.ID, &r.Name, &r.Address, &r.ContactPhone)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan restaurants: %w", err)
	}

	index := make(map[int64]int, len(restaurants))
	for i, r := range restaurants {
		index[r.ID] = i
	}

	menuRows, err := s.pool.Query(ctx,
		`SELECT restaurant_id, product_id, availability FROM restaurant_menu_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query menu items: %w", err)
	}
	defer menuRows.Close()

	for menuRows.Next() {
		var (
			restaurantID int64
			item         domain.MenuItem
		)
		if err := menuRows.Scan(&restaurantID, &item.ProductID, &item.Available); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		if i, ok := index[restaurantID]; ok {
			restaurants[i].Menu = append(restaurants[i].Menu, item)
		}
	}
	if err := menuRows.Err(); err != nil {
		return nil, fmt.Errorf("read menu items: %w", err)
	}
	return restaurants, nil
}

// UpdateOrder applies a lifecycle transition. Nil fields keep their stored value.
func (s *Store) UpdateOrder(ctx context.Context, u domain.OrderUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders
		 SET status = $2,
		     restaurant_id = COALESCE($3, restaurant_id),
		     delivered_at = COALESCE($4, delivered_at)
		 WHERE id = $1`,
		u.OrderID, u.Status, u.RestaurantID, u.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", u.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", u.OrderID, domain.ErrOrderNotFound)
	}
	return nil
}

// CreateOrder inserts the order and its items in one transaction. Item
// prices are copied from the products table.
func (s *Store) CreateOrder(ctx context.Context, n domain.NewOrder, registeredAt time.Time) (domain.Order, error) {
	order := domain.Order{
		Firstname:    n.Firstname,
		Lastname:     n.Lastname,
		Phonenumber:  n.Phonenumber,
		Address:      n.Address,
		Status:       domain.StatusNew,
		RegisteredAt: registeredAt,
	}

	err := s.execTx(ctx, func(tx pgx.Tx) error {
		prices, err := productPrices(ctx, tx, n.Items)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO orders (firstname, lastname, phonenumber, address, status, registered_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			order.Firstname, order.Lastname, order.Phonenumber, order.Address, order.Status, order.RegisteredAt,
		).Scan(&order.ID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, it := range n.Items {
			price := prices[it.ProductID]
			if _, err := tx.Exec(ctx,
				`INSERT INTO order_items (order_id, product_id, quantity, price)
				 VALUES ($1, $2, $3, $4::numeric)`,
				order.ID, it.ProductID, it.Quantity, price.String(),
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
			order.Items = append(order.Items, domain.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: price})
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// productPrices returns the current price of every ordered product, or an
// *domain.UnknownProductError naming the first one that does not exist.
func productPrices(ctx context.Context, tx pgx.Tx, items []domain.NewOrderItem) (map[int64]decimal.Decimal, error) {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	rows, err := tx.Query(ctx, `SELECT id, price::text FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query product prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[int64]decimal.Decimal, len(ids))
	for rows.Next() {
		var (
			id    int64
			price string
		)
		if err := rows.Scan(&id, &price); err != nil {
			return nil, fmt.Errorf("scan product price: %w", err)
		}
		if prices[id], err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of product %d: %w", id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read product prices: %w", err)
	}

	for _, id := range ids {
		if _, ok := prices[id]; !ok {
			return nil, &domain.UnknownProductError{ProductID: id}
		}
	}
	return prices, nil
}

// AvailableProducts returns products available in at least one menu, by id.
func (s *Store) AvailableProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, p.price::text, p.special_status, p.description, c.id, c.name
		 FROM products p
		 LEFT JOIN product_categories c ON c.id = p.category_id
		 WHERE EXISTS (
		     SELECT 1 FROM restaurant_menu_items m
		     WHERE m.product_id = p.id AND m.availability
		 )
		 ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}

	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		var (
			p            domain.Product
			price        string
			categoryID   *int64
			categoryName *string
		)
		if err := row.Scan(&p.ID, &p.Name, &price, &p.SpecialStatus, &p.Description, &categoryID, &categoryName); err != nil {
			return p, err
		}
		var err error
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return p, fmt.Errorf("parse price of product %d: %w", p.ID, err)
		}
		if categoryID != nil && categoryName != nil {
			p.Category = &domain.Category{ID: *categoryID, Name: *categoryName}
		}
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return products, nil
}

// GetPlace implements domain.PlaceCache.
func (s *Store) GetPlace(ctx context.Context, address string) (domain.Place, bool, error) {
	place := domain.Place{Address: address}
	err := s.pool.QueryRow(ctx,
		`SELECT lat, lng, request_date FROM places WHERE address = $1`, address,
	).Scan(&place.Lat, &place.Lng, &place.RequestDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Place{}, false, nil
	}
	if err != nil {
		return domain.Place{}, false, fmt.Errorf("query place: %w", err)
	}
	return place, true, nil
}

// PutPlace implements domain.PlaceCache.
func (s *Store) PutPlace(ctx context.Context, place domain.Place) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO places (address, lat, lng, request_date)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (address) DO UPDATE
		 SET lat = EXCLUDED.lat, lng = EXCLUDED.lng, request_date = EXCLUDED.request_date`,
		place.Address, place.Lat, place.Lng, place.RequestDate,
	)
	if err != nil {
		return fmt.Errorf("upsert place: %w", err)
	}
	return nil
}
