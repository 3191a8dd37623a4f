package catalog

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/tools"
)

func testProducts() []domain.Product {
	return []domain.Product{
		{ID: "P1", Title: "Midi Wrap Dress", Price: 119, Tags: []string{"wedding", "midi"}, Sizes: []string{"S", "M", "L"}, Color: "Charcoal"},
		{ID: "P2", Title: "Satin Slip Dress", Price: 99, Tags: []string{"wedding", "midi"}, Sizes: []string{"XS", "S", "M"}, Color: "Blush"},
		{ID: "P3", Title: "Knit Bodycon", Price: 89, Tags: []string{"midi"}, Sizes: []string{"M", "L"}, Color: "Navy"},
		{ID: "P4", Title: "A-Line Day Dress", Price: 75, Tags: []string{"daywear", "midi"}, Sizes: []string{"S", "M", "L"}, Color: "Olive"},
		{ID: "P5", Title: "Sequin Party Dress", Price: 149, Tags: []string{"party"}, Sizes: []string{"S", "M"}, Color: "Black"},
	}
}

type fakeCatalog struct {
	products []domain.Product
	err      error
}

func (f *fakeCatalog) Products(context.Context) ([]domain.Product, error) {
	return f.products, f.err
}

func (f *fakeCatalog) Product(_ context.Context, id string) (*domain.Product, error) {
	for i := range f.products {
		if f.products[i].ID == id {
			return &f.products[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func ids(ps []domain.Product) []string {
	out := make([]string, len(ps))
	for i := range ps {
		out[i] = ps[i].ID
	}
	return out
}

func price(v float64) *float64 { return &v }

func TestSearch(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"wedding dress under 100", Query{Tags: []string{"wedding"}, Terms: []string{"dress"}, PriceCap: price(100)}, []string{"P2"}},
		{"wedding without cap", Query{Tags: []string{"wedding"}}, []string{"P2", "P1"}},
		{"midi under 90 ranks by price", Query{Tags: []string{"midi"}, PriceCap: price(90)}, []string{"P4", "P3"}},
		{"two tags outrank one", Query{Tags: []string{"wedding", "midi"}}, []string{"P2", "P1"}},
		{"terms only", Query{Terms: []string{"party"}}, []string{"P5"}},
		{"cap only", Query{PriceCap: price(80)}, []string{"P4"}},
		{"cap is inclusive", Query{PriceCap: price(75)}, []string{"P4"}},
		{"nothing matches", Query{Tags: []string{"party"}, PriceCap: price(100)}, nil},
		{"term hits break ties", Query{Tags: []string{"midi"}, Terms: []string{"wrap"}}, []string{"P1", "P4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Search(testProducts(), tt.query))
			if !slices.Equal(got, tt.want) && !(len(got) == 0 && len(tt.want) == 0) {
				t.Errorf("Search = %v, want %v", got, tt.want)
			}
		})
	}
}

// Search never returns more than MaxResults products and never one priced
// above the cap.
func TestSearchBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	tags := []string{"wedding", "midi", "party", "daywear", "beach"}
	for range 2000 {
		limit := float64(r.IntN(200))
		q := Query{PriceCap: &limit}
		for _, tag := range tags {
			if r.IntN(2) == 0 {
				q.Tags = append(q.Tags, tag)
			}
		}
		got := Search(testProducts(), q)
		if len(got) > MaxResults {
			t.Fatalf("query %+v returned %d results", q, len(got))
		}
		for _, p := range got {
			if p.Price > limit {
				t.Fatalf("query cap %v returned %s at %v", limit, p.ID, p.Price)
			}
		}
	}
}

func TestSearchTool(t *testing.T) {
	tool := NewSearchTool(&fakeCatalog{products: testProducts()})
	params := map[string]any{"tags": []any{"wedding"}, "query_terms": []any{"dress"}, "price_cap": 100.0}
	if err := tool.Validate(params); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	res, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	products, ok := res.Data.([]domain.Product)
	if !ok || len(products) != 1 || products[0].ID != "P2" {
		t.Fatalf("Data = %#v", res.Data)
	}
	if res.Output != "matched P2" {
		t.Errorf("Output = %q", res.Output)
	}

	if err := tool.Validate(map[string]any{"price_cap": -5.0}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("negative cap error = %v", err)
	}
	if err := tool.Validate(map[string]any{"price_cap": "cheap"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("string cap error = %v", err)
	}
}

func TestSearchToolCatalogError(t *testing.T) {
	tool := NewSearchTool(&fakeCatalog{err: errors.New("db down")})
	if _, err := tool.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecommend(t *testing.T) {
	p1 := &testProducts()[0] // S, M, L
	p3 := &testProducts()[2] // M, L
	tests := []struct {
		name      string
		product   *domain.Product
		requested []string
		fit       string
		size      string
		confident bool
	}{
		{"between M and L fitted", p1, []string{"M", "L"}, FitFitted, "M", true},
		{"between M and L relaxed", p1, []string{"l", "m"}, FitRelaxed, "L", true},
		{"between M and L no preference", p1, []string{"M", "L"}, "", "", false},
		{"single requested size", p1, []string{"S"}, "", "S", true},
		{"requested size unavailable", p3, []string{"XS"}, FitFitted, "", false},
		{"fit only picks smallest", p3, nil, FitFitted, "M", true},
		{"no signal", p3, nil, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Recommend(tt.product, tt.requested, tt.fit)
			if rec.Size != tt.size || rec.Confident != tt.confident {
				t.Errorf("Recommend = %+v, want size %q confident %v", rec, tt.size, tt.confident)
			}
			if rec.Confident && !tt.product.HasSize(rec.Size) {
				t.Errorf("recommended %q outside declared sizes %v", rec.Size, tt.product.Sizes)
			}
			for _, c := range rec.Candidates {
				if !tt.product.HasSize(c) {
					t.Errorf("candidate %q outside declared sizes", c)
				}
			}
		})
	}
}

func TestSizeTool(t *testing.T) {
	tool := NewSizeTool(&fakeCatalog{products: testProducts()})
	ctx := context.Background()

	if err := tool.Validate(map[string]any{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("missing product_id error = %v", err)
	}
	if err := tool.Validate(map[string]any{"product_id": "P1", "fit": "baggy"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bad fit error = %v", err)
	}

	res, err := tool.Execute(ctx, map[string]any{"product_id": "P2", "sizes": []string{"M", "L"}})
	if err != nil {
		t.Fatal(err)
	}
	rec := res.Data.(SizeRecommendation)
	if !rec.Confident || rec.Size != "M" {
		t.Errorf("rec = %+v, want M (only M of M/L is stocked)", rec)
	}

	if _, err := tool.Execute(ctx, map[string]any{"product_id": "P9"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown product error = %v", err)
	}
}

func TestRegistryRun(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(NewSearchTool(&fakeCatalog{products: testProducts()}))
	reg.Register(NewSizeTool(&fakeCatalog{products: testProducts()}))

	if got := reg.List(); !slices.Equal(got, []string{tools.ProductSearch, tools.SizeRecommender}) {
		t.Errorf("List = %v", got)
	}
	if _, err := reg.Run(context.Background(), "nope", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("unknown tool error = %v", err)
	}
	if _, err := reg.Run(context.Background(), tools.SizeRecommender, map[string]any{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("validation not applied: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	reg.Register(NewSearchTool(nil))
}
