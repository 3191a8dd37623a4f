package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/jkaninda/duka/internal/domain"
)

// CatalogCache wraps a Store and keeps the product catalog in memory for the
// lifetime of the process. Orders always go through to the backend.
type CatalogCache struct {
	Store

	mu       sync.RWMutex
	loaded   bool
	products []domain.Product
	byID     map[string]*domain.Product
}

// NewCatalogCache wraps s with a read-through product cache.
func NewCatalogCache(s Store) *CatalogCache {
	return &CatalogCache{Store: s}
}

// Products returns a copy of the cached catalog, loading it on first use.
func (c *CatalogCache) Products(ctx context.Context) ([]domain.Product, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Product, len(c.products))
	for i := range c.products {
		out[i] = *c.products[i].Clone()
	}
	return out, nil
}

// Product returns the cached product with the given id.
func (c *CatalogCache) Product(ctx context.Context, id string) (*domain.Product, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[strings.ToUpper(id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (c *CatalogCache) load(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	products, err := c.Store.Products(ctx)
	if err != nil {
		return err
	}
	c.products = products
	c.byID = make(map[string]*domain.Product, len(products))
	for i := range c.products {
		c.byID[c.products[i].ID] = &c.products[i]
	}
	c.loaded = true
	return nil
}

var _ Store = (*CatalogCache)(nil)
