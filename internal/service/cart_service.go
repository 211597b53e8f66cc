package service

import (
	"context"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartService defines the cart operations available to a user. Every
// mutation runs in its own transaction holding the cart row lock, so two
// concurrent calls on the same cart never lose an update.
type CartService interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error)

	// UpdateItem sets a line's quantity. A quantity <= 0 removes the line and
	// reports removed == true.
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (cart *domain.Cart, removed bool, err error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type cartService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewCartService creates a new instance of CartService
func NewCartService(store repository.Store, logger *zap.Logger) CartService {
	return &cartService{
		store:  store,
		logger: logger.Named("cart"),
	}
}

func (s *cartService) GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.store.Carts().GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.NewValidationError("quantity", "Quantity must be at least 1")
	}

	var cart *domain.Cart
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Carts().GetOrCreate(ctx, userID); err != nil {
			return err
		}

		current, err := tx.Carts().Lock(ctx, userID)
		if err != nil {
			return err
		}

		product, err := tx.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}

		total := quantity
		if line, ok := current.Line(productID); ok {
			total += line.Quantity
		}

		if !product.CanSupply(total) {
			return domain.StockExceeded(product, total)
		}

		if err := tx.Carts().UpsertItem(ctx, current.ID, productID, total); err != nil {
			return err
		}

		cart, err = tx.Carts().FindByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Cart item added",
		zap.String("user_id", userID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity),
	)

	return cart, nil
}

func (s *cartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.Cart, bool, error) {
	var (
		cart    *domain.Cart
		removed bool
	)

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Carts().Lock(ctx, userID)
		if err != nil {
			return err
		}

		item, ok := current.Item(itemID)
		if !ok {
			return repository.ErrCartItemNotFound
		}

		if quantity <= 0 {
			if err := tx.Carts().DeleteItem(ctx, current.ID, itemID); err != nil {
				return err
			}
			removed = true
		} else {
			product, err := tx.Products().FindByID(ctx, item.ProductID)
			if err != nil {
				return err
			}

			if !product.CanSupply(quantity) {
				return domain.StockExceeded(product, quantity)
			}

			if err := tx.Carts().UpdateItemQuantity(ctx, current.ID, itemID, quantity); err != nil {
				return err
			}
		}

		cart, err = tx.Carts().FindByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	return cart, removed, nil
}

func (s *cartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Cart, error) {
	var cart *domain.Cart

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Carts().Lock(ctx, userID)
		if err != nil {
			return err
		}

		if err := tx.Carts().DeleteItem(ctx, current.ID, itemID); err != nil {
			return err
		}

		cart, err = tx.Carts().FindByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// Clear empties the cart. Clearing an already empty cart is not an error.
func (s *cartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		current, err := tx.Carts().Lock(ctx, userID)
		if err != nil {
			return err
		}

		removed, err := tx.Carts().Clear(ctx, current.ID)
		if err != nil {
			return err
		}

		s.logger.Debug("Cart cleared",
			zap.String("user_id", userID.String()),
			zap.Int64("removed_lines", removed),
		)
		return nil
	})
}
