package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/duka/internal/domain"
)

type fakeSource map[string]*domain.Order

func (f fakeSource) Order(_ context.Context, id string) (*domain.Order, error) {
	o, ok := f[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

var created = time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)

func source() fakeSource {
	return fakeSource{
		"A1003": {ID: "A1003", Email: "mira@example.com", CreatedAt: created, Status: domain.OrderOpen},
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	if o, err := Lookup(ctx, source(), "a1003", "Mira@Example.com"); err != nil || o.ID != "A1003" {
		t.Fatalf("Lookup = %v, %v", o, err)
	}
	if _, err := Lookup(ctx, source(), "A1003", "eve@example.com"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("wrong email error = %v", err)
	}
	if _, err := Lookup(ctx, source(), "A9999", "mira@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown order error = %v", err)
	}
}

func TestLookupToolErrorsDoNotLeak(t *testing.T) {
	tool := NewLookupTool(source())
	_, err := tool.Execute(context.Background(), map[string]any{"order_id": "A1003", "email": "eve@example.com"})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if strings.Contains(msg, "mira") || strings.Contains(msg, "eve@") {
		t.Errorf("error leaks credentials: %q", msg)
	}
}

func TestValidate(t *testing.T) {
	tool := NewLookupTool(source())
	bad := []map[string]any{
		{},
		{"order_id": "A1003"},
		{"email": "mira@example.com"},
		{"order_id": "1003", "email": "mira@example.com"},
		{"order_id": "A1003", "email": "mira"},
	}
	for _, p := range bad {
		if err := tool.Validate(p); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Validate(%v) = %v", p, err)
		}
	}
	cancel := NewCancelTool(source(), nil)
	if err := cancel.Validate(map[string]any{"order_id": "A1003", "email": "mira@example.com", "now": "yesterday"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad now = %v", err)
	}
}

func TestCancelToolDefersDecision(t *testing.T) {
	fixed := created.Add(95 * time.Minute)
	tool := NewCancelTool(source(), func() time.Time { return fixed })
	ctx := context.Background()

	res, err := tool.Execute(ctx, map[string]any{"order_id": "A1003", "email": "mira@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	req := res.Data.(CancelRequest)
	if !req.Now.Equal(fixed) || req.Order.Status != domain.OrderOpen {
		t.Errorf("req = %+v", req)
	}

	res, err = tool.Execute(ctx, map[string]any{"order_id": "A1003", "email": "mira@example.com", "now": "2025-09-07T12:35:00Z"})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Data.(CancelRequest).Now; !got.Equal(created.Add(35 * time.Minute)) {
		t.Errorf("explicit now ignored: %v", got)
	}

	if _, err := tool.Execute(ctx, map[string]any{"order_id": "A1003", "email": "x@example.com"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("unauthorized = %v", err)
	}
}
