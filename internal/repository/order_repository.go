package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound = domain.NewNotFoundError("order")
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	AddItem(ctx context.Context, item *domain.OrderItem) error
	SetTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) (time.Time, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// Lock is FindByID plus a row lock on the order held until the
	// surrounding transaction ends
	Lock(ctx context.Context, id uuid.UUID) (*domain.Order, error)

	// List returns orders newest first with items loaded. A nil userID
	// lists every order.
	List(ctx context.Context, userID *uuid.UUID) ([]*domain.Order, error)
}

type orderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, user_id, status, total_price, shipping_address, phone_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		order.ID,
		order.UserID,
		string(order.Status),
		order.TotalPrice,
		order.ShippingAddress,
		order.PhoneNumber,
		order.CreatedAt,
		order.UpdatedAt,
	)

	if err != nil {
		if isForeignKeyViolation(err, "fk_orders_user") {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

func (r *orderRepository) AddItem(ctx context.Context, item *domain.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}

	return nil
}

func (r *orderRepository) SetTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx, `UPDATE orders SET total_price = $2 WHERE id = $1`, orderID, total)
	if err != nil {
		return fmt.Errorf("failed to set order total: %w", err)
	}

	return expectOneRow(result, ErrOrderNotFound)
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) (time.Time, error) {
	query := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx, query, orderID, string(status)).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrOrderNotFound
		}
		return time.Time{}, fmt.Errorf("failed to update order status: %w", err)
	}

	return updatedAt, nil
}

const orderSelect = `
	SELECT o.id, o.user_id, COALESCE(u.username, ''), o.status, o.total_price,
	       o.shipping_address, o.phone_number, o.created_at, o.updated_at,
	       oi.id, oi.product_id, COALESCE(p.name, ''), oi.quantity, oi.price
	FROM orders o
	LEFT JOIN users u ON u.id = o.user_id
	LEFT JOIN order_items oi ON oi.order_id = o.id
	LEFT JOIN products p ON p.id = oi.product_id
`

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	orders, err := r.query(ctx, orderSelect+` WHERE o.id = $1 ORDER BY oi.id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}

	return orders[0], nil
}

func (r *orderRepository) Lock(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	// Outer-joined rows cannot be locked; only the order row is
	orders, err := r.query(ctx, orderSelect+` WHERE o.id = $1 ORDER BY oi.id FOR UPDATE OF o`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}

	return orders[0], nil
}

func (r *orderRepository) List(ctx context.Context, userID *uuid.UUID) ([]*domain.Order, error) {
	var (
		orders []*domain.Order
		err    error
	)

	if userID != nil {
		orders, err = r.query(ctx, orderSelect+` WHERE o.user_id = $1 ORDER BY o.created_at DESC, o.id, oi.id`, *userID)
	} else {
		orders, err = r.query(ctx, orderSelect+` ORDER BY o.created_at DESC, o.id, oi.id`)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, nil
}

// query folds the order/item join back into orders, keeping row order
func (r *orderRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []*domain.Order{}
	byID := make(map[uuid.UUID]*domain.Order)

	for rows.Next() {
		var (
			o           domain.Order
			status      string
			itemID      uuid.NullUUID
			productID   uuid.NullUUID
			productName string
			quantity    sql.NullInt64
			price       decimal.NullDecimal
		)

		err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.UserName,
			&status,
			&o.TotalPrice,
			&o.ShippingAddress,
			&o.PhoneNumber,
			&o.CreatedAt,
			&o.UpdatedAt,
			&itemID,
			&productID,
			&productName,
			&quantity,
			&price,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		order, seen := byID[o.ID]
		if !seen {
			o.Status = domain.OrderStatus(status)
			o.Items = []domain.OrderItem{}
			order = &o
			byID[o.ID] = order
			orders = append(orders, order)
		}

		if itemID.Valid {
			order.Items = append(order.Items, domain.OrderItem{
				ID:          itemID.UUID,
				OrderID:     order.ID,
				ProductID:   productID.UUID,
				ProductName: productName,
				Quantity:    int(quantity.Int64),
				Price:       price.Decimal,
			})
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}
