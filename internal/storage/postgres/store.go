package postgres

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/storage"
)

// Store implements storage.Store on a GORM connection. The sqlite package
// constructs it with its own dialector, so both SQL backends share one
// implementation.
type Store struct {
	db       *gorm.DB
	driver   string
	products *ProductRepository
	orders   *OrderRepository
	logger   *slog.Logger
}

// NewStore wraps an open, migrated GORM connection.
func NewStore(db *gorm.DB, driver string, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		driver:   driver,
		products: NewProductRepository(db),
		orders:   NewOrderRepository(db),
		logger:   logger,
	}
}

// GormDB returns the underlying GORM DB for direct access when needed.
func (s *Store) GormDB() *gorm.DB {
	return s.db
}

func (s *Store) Products(ctx context.Context) ([]domain.Product, error) {
	return s.products.List(ctx)
}

func (s *Store) Product(ctx context.Context, id string) (*domain.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *Store) Order(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *Store) CancelOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.orders.Cancel(ctx, id)
}

func (s *Store) Seed(ctx context.Context, ds *storage.Dataset) error {
	products, err := s.products.Insert(ctx, ds.Products)
	if err != nil {
		return err
	}
	orders, err := s.orders.Insert(ctx, ds.Orders)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "store seeded",
		slog.String("driver", s.driver),
		slog.Int("products_added", products),
		slog.Int("orders_added", orders),
	)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ping(ctx, s.db)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Driver() string {
	return s.driver
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
