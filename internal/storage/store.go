// Package storage defines the Store interface that abstracts the product
// catalog and order records. Four backends are provided: memory (default,
// seeded from JSON), SQLite and PostgreSQL through GORM, and Badger.
package storage

import (
	"context"

	"github.com/jkaninda/duka/internal/domain"
)

// Store is the data source consumed by the tools and the policy guard.
//
// Products are read-only. The only permitted write is CancelOrder, which
// behaves as a compare-and-swap of the order status from open to cancelled:
// it returns domain.ErrNotFound for an unknown order and
// domain.ErrOrderNotOpen when the order is no longer open, so concurrent
// duplicate cancellations succeed at most once.
type Store interface {
	Products(ctx context.Context) ([]domain.Product, error)
	Product(ctx context.Context, id string) (*domain.Product, error)
	Order(ctx context.Context, id string) (*domain.Order, error)
	CancelOrder(ctx context.Context, id string) (*domain.Order, error)

	// Seed inserts the dataset, skipping records that already exist.
	Seed(ctx context.Context, ds *Dataset) error

	Ping(ctx context.Context) error
	Close() error
	Driver() string
}

// Driver constants.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)
