package repository

import (
	"database/sql"
	"testing"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// Helpers for the service-level tests in package repository_test, which
// share this package's container.

func SharedDB() *sql.DB { return testDB }

func CreateUser(t *testing.T, username string) uuid.UUID { return createUser(t, username) }

func CreateProduct(t *testing.T, name, price string, stock int) *domain.Product {
	return createProduct(t, name, price, stock)
}

func StockOf(t *testing.T, productID uuid.UUID) int { return stockOf(t, productID) }
