package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store groups the repositories that take part in one unit of work
type Store interface {
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository

	// WithinTx runs fn against repositories bound to a single transaction.
	// The transaction commits only if fn returns nil. Nested calls reuse the
	// outer transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

type store struct {
	db *sql.DB
	q  DBTX
}

// NewStore creates a Store backed by the given pool
func NewStore(db *sql.DB) Store {
	return &store{db: db, q: db}
}

func (s *store) Products() ProductRepository { return &productRepository{db: s.q} }
func (s *store) Carts() CartRepository       { return &cartRepository{db: s.q} }
func (s *store) Orders() OrderRepository     { return &orderRepository{db: s.q} }

func (s *store) WithinTx(ctx context.Context, fn func(tx Store) error) (err error) {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&store{db: s.db, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
