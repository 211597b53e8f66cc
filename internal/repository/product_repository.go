package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = domain.NewNotFoundError("product")
)

// ProductRepository is the catalog store: reads plus the conditional stock
// decrement used by checkout
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error

	// DecrementStock removes quantity units only if that leaves stock >= 0.
	// It returns the price of the row it decremented and false when stock
	// was insufficient.
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (decimal.Decimal, bool, error)
}

type productRepository struct {
	db DBTX
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db DBTX) ProductRepository {
	return &productRepository{db: db}
}

// Create inserts a new product
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Stock,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// FindByID reads the latest committed product row
func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT id, name, description, price, stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	product := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

func (r *productRepository) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	result, err := r.db.ExecContext(ctx, `UPDATE products SET price = $2, updated_at = NOW() WHERE id = $1`, id, price)
	if err != nil {
		return fmt.Errorf("failed to update product price: %w", err)
	}

	return expectOneRow(result, ErrProductNotFound)
}

func (r *productRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (decimal.Decimal, bool, error) {
	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING price
	`

	var price decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, id, quantity).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("failed to decrement stock: %w", err)
	}

	return price, true, nil
}
