// Package storagetest provides a behavioural test suite shared by every
// storage.Store backend.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/storage"
)

// Dataset returns a small fixed dataset used by the suite.
func Dataset() *storage.Dataset {
	return &storage.Dataset{
		Products: []domain.Product{
			{ID: "P1", Title: "Midi Wrap Dress", Price: 119, Sizes: []string{"S", "M", "L"}, Tags: []string{"wedding", "midi"}, Color: "Charcoal"},
			{ID: "P2", Title: "Satin Slip Dress", Price: 99, Sizes: []string{"XS", "S", "M"}, Tags: []string{"wedding", "midi"}, Color: "Blush"},
		},
		Orders: []domain.Order{
			{ID: "A1003", Email: "mira@example.com", CreatedAt: time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC), Status: domain.OrderOpen, Items: []domain.LineItem{{ProductID: "P2", Size: "S"}}},
			{ID: "A2000", Email: "done@example.com", CreatedAt: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC), Status: domain.OrderFulfilled, Items: []domain.LineItem{{ProductID: "P1", Size: "M"}}},
		},
	}
}

// Run exercises s, which must be empty. The suite seeds it itself.
func Run(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Seed(ctx, Dataset()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Seeding twice is a no-op.
	if err := s.Seed(ctx, Dataset()); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	t.Run("products", func(t *testing.T) {
		products, err := s.Products(ctx)
		if err != nil {
			t.Fatalf("Products: %v", err)
		}
		if len(products) != 2 {
			t.Fatalf("got %d products, want 2", len(products))
		}
		p, err := s.Product(ctx, "P2")
		if err != nil {
			t.Fatalf("Product: %v", err)
		}
		if p.Title != "Satin Slip Dress" || p.Price != 99 || len(p.Sizes) != 3 || !p.HasTag("wedding") {
			t.Errorf("unexpected product: %+v", p)
		}
		if _, err := s.Product(ctx, "P404"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("missing product error = %v, want ErrNotFound", err)
		}
	})

	t.Run("order", func(t *testing.T) {
		o, err := s.Order(ctx, "A1003")
		if err != nil {
			t.Fatalf("Order: %v", err)
		}
		if o.Email != "mira@example.com" || o.Status != domain.OrderOpen {
			t.Errorf("unexpected order: %+v", o)
		}
		if !o.CreatedAt.Equal(time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)) {
			t.Errorf("created_at = %v", o.CreatedAt)
		}
		if len(o.Items) != 1 || o.Items[0].ProductID != "P2" {
			t.Errorf("items = %+v", o.Items)
		}
		if _, err := s.Order(ctx, "Z9999"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("missing order error = %v, want ErrNotFound", err)
		}
	})

	t.Run("cancel not open", func(t *testing.T) {
		if _, err := s.CancelOrder(ctx, "A2000"); !errors.Is(err, domain.ErrOrderNotOpen) {
			t.Errorf("cancel fulfilled = %v, want ErrOrderNotOpen", err)
		}
		if _, err := s.CancelOrder(ctx, "Z9999"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("cancel missing = %v, want ErrNotFound", err)
		}
	})

	t.Run("cancel at most once", func(t *testing.T) {
		const workers = 8
		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			rejected  atomic.Int32
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o, err := s.CancelOrder(ctx, "A1003")
				switch {
				case err == nil:
					if o.Status != domain.OrderCancelled {
						t.Errorf("status after cancel = %q", o.Status)
					}
					succeeded.Add(1)
				case errors.Is(err, domain.ErrOrderNotOpen):
					rejected.Add(1)
				default:
					t.Errorf("unexpected cancel error: %v", err)
				}
			}()
		}
		wg.Wait()
		if succeeded.Load() != 1 || rejected.Load() != workers-1 {
			t.Fatalf("succeeded=%d rejected=%d, want 1 and %d", succeeded.Load(), rejected.Load(), workers-1)
		}
		o, err := s.Order(ctx, "A1003")
		if err != nil {
			t.Fatalf("Order: %v", err)
		}
		if o.Status != domain.OrderCancelled {
			t.Errorf("persisted status = %q, want cancelled", o.Status)
		}
	})
}
