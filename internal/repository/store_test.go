package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	product := createProduct(t, "Desk", "300.00", 4)
	userID := createUser(t, "rollback")
	errAbort := errors.New("abort")

	var orderID uuid.UUID
	err := store.WithinTx(ctx, func(tx Store) error {
		if _, ok, err := tx.Products().DecrementStock(ctx, product.ID, 3); err != nil || !ok {
			return errors.New("decrement failed")
		}

		order := newOrder(userID, time.Now().UTC())
		orderID = order.ID
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}

		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	assert.Equal(t, 4, stockOf(t, product.ID))
	_, err = store.Orders().FindByID(ctx, orderID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestStore_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	product := createProduct(t, "Shelf", "80.00", 4)

	err := store.WithinTx(ctx, func(tx Store) error {
		// Nested calls join the outer transaction
		return tx.WithinTx(ctx, func(inner Store) error {
			_, _, err := inner.Products().DecrementStock(ctx, product.ID, 1)
			return err
		})
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stockOf(t, product.ID))
}

func TestStore_WithinTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	product := createProduct(t, "Vase", "12.00", 2)

	assert.Panics(t, func() {
		_ = store.WithinTx(ctx, func(tx Store) error {
			_, _, _ = tx.Products().DecrementStock(ctx, product.ID, 2)
			panic("boom")
		})
	})

	assert.Equal(t, 2, stockOf(t, product.ID))
}

// Concurrent buyers racing for the last units never oversell
func TestStore_ConcurrentDecrementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	lamp := createProduct(t, "Lamp", "25.00", 5)
	bulb := createProduct(t, "Bulb", "2.00", 50)

	const buyers = 12
	products := []uuid.UUID{lamp.ID, bulb.ID}
	sort.Slice(products, func(i, j int) bool { return products[i].String() < products[j].String() })

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		errs      []error
	)

	users := make([]uuid.UUID, buyers)
	for i := range users {
		users[i] = createUser(t, "racer")
	}

	for _, userID := range users {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()

			err := store.WithinTx(ctx, func(tx Store) error {
				order := newOrder(userID, time.Now().UTC())
				if err := tx.Orders().Create(ctx, order); err != nil {
					return err
				}

				for _, id := range products {
					price, ok, err := tx.Products().DecrementStock(ctx, id, 1)
					if err != nil {
						return err
					}
					if !ok {
						return domain.OutOfStock(id, "", 0, 1)
					}
					if err := tx.Orders().AddItem(ctx, &domain.OrderItem{
						ID:        uuid.New(),
						OrderID:   order.ID,
						ProductID: id,
						Quantity:  1,
						Price:     price,
					}); err != nil {
						return err
					}
				}
				return nil
			})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if !errors.Is(err, domain.ErrOutOfStock) {
				errs = append(errs, err)
			}
		}(userID)
	}
	wg.Wait()

	require.Empty(t, errs, "only out-of-stock failures are expected")
	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, stockOf(t, lamp.ID))
	assert.Equal(t, 45, stockOf(t, bulb.ID))
}
