// Package memory implements storage.Store on in-process maps. It is the
// default backend and is seeded from the JSON dataset at startup.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/storage"
)

// Store holds products and orders in memory. A single mutex serializes order
// mutation, which makes CancelOrder an atomic compare-and-swap.
type Store struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	orders   map[string]*domain.Order
	logger   *slog.Logger
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	return &Store{
		products: make(map[string]*domain.Product),
		orders:   make(map[string]*domain.Order),
		logger:   logger,
	}
}

func (s *Store) Products(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Product(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[strings.ToUpper(id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *Store) Order(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[strings.ToUpper(id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *Store) CancelOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[strings.ToUpper(id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.Status != domain.OrderOpen {
		return nil, domain.ErrOrderNotOpen
	}
	o.Status = domain.OrderCancelled
	return o.Clone(), nil
}

func (s *Store) Seed(_ context.Context, ds *storage.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range ds.Products {
		p := ds.Products[i]
		if _, exists := s.products[p.ID]; !exists {
			s.products[p.ID] = p.Clone()
		}
	}
	for i := range ds.Orders {
		o := ds.Orders[i]
		if _, exists := s.orders[o.ID]; !exists {
			s.orders[o.ID] = o.Clone()
		}
	}
	s.logger.Info("memory store seeded",
		slog.Int("products", len(s.products)),
		slog.Int("orders", len(s.orders)),
	)
	return nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Driver returns "memory".
func (s *Store) Driver() string { return storage.DriverMemory }

// compile-time interface check
var _ storage.Store = (*Store)(nil)
