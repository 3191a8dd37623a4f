// Package catalog implements the product tools: product_search and
// size_recommender.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/tools"
)

// MaxResults is the most products a search ever surfaces.
const MaxResults = 2

// Catalog is the read-only product source used by the catalog tools.
type Catalog interface {
	Products(ctx context.Context) ([]domain.Product, error)
	Product(ctx context.Context, id string) (*domain.Product, error)
}

// SearchTool filters the catalog by price cap, tags and title terms.
type SearchTool struct {
	catalog Catalog
}

// NewSearchTool creates the product_search tool.
func NewSearchTool(c Catalog) *SearchTool {
	return &SearchTool{catalog: c}
}

func (t *SearchTool) Name() string { return tools.ProductSearch }
func (t *SearchTool) Description() string {
	return fmt.Sprintf("Search the catalog by tags, title terms and maximum price. Returns at most %d products.", MaxResults)
}
func (t *SearchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query_terms": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Words to match against product titles"},
			"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Catalog tags such as wedding or midi"},
			"price_cap":   map[string]any{"type": "number", "minimum": 0, "description": "Maximum price, inclusive"},
		},
	}
}

func (t *SearchTool) Validate(params map[string]any) error {
	if _, present := params["price_cap"]; present {
		priceCap, ok := tools.FloatParam(params, "price_cap")
		if !ok || priceCap < 0 {
			return tools.InvalidParam("price_cap must be a non-negative number")
		}
	}
	return nil
}

// Query is a parsed product_search request.
type Query struct {
	Terms    []string
	Tags     []string
	PriceCap *float64
}

func queryFrom(params map[string]any) Query {
	q := Query{
		Terms: lowerAll(tools.StringsParam(params, "query_terms")),
		Tags:  lowerAll(tools.StringsParam(params, "tags")),
	}
	if priceCap, ok := tools.FloatParam(params, "price_cap"); ok {
		q.PriceCap = &priceCap
	}
	return q
}

func (t *SearchTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	products, err := t.catalog.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	matches := Search(products, queryFrom(params))

	ids := make([]string, len(matches))
	for i := range matches {
		ids[i] = matches[i].ID
	}
	output := "no matching products"
	if len(ids) > 0 {
		output = "matched " + strings.Join(ids, ", ")
	}
	return &tools.Result{
		Output:   output,
		Data:     matches,
		Metadata: map[string]any{"count": len(matches)},
		Success:  true,
	}, nil
}

type scored struct {
	product  domain.Product
	tagHits  int
	termHits int
}

// Search ranks products by tag overlap, then title-term hits, then price
// ascending, then id, and returns at most MaxResults of them. Products above
// the price cap never match. When tags are given a product must share at
// least one; otherwise when terms are given its title must contain one.
func Search(products []domain.Product, q Query) []domain.Product {
	var candidates []scored
	for _, p := range products {
		if q.PriceCap != nil && p.Price > *q.PriceCap {
			continue
		}
		s := scored{product: p}
		for _, tag := range q.Tags {
			if p.HasTag(tag) {
				s.tagHits++
			}
		}
		title := strings.ToLower(p.Title)
		for _, term := range q.Terms {
			if strings.Contains(title, term) {
				s.termHits++
			}
		}
		switch {
		case len(q.Tags) > 0 && s.tagHits == 0:
			continue
		case len(q.Tags) == 0 && len(q.Terms) > 0 && s.termHits == 0:
			continue
		}
		candidates = append(candidates, s)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.tagHits != b.tagHits {
			return a.tagHits > b.tagHits
		}
		if a.termHits != b.termHits {
			return a.termHits > b.termHits
		}
		if a.product.Price != b.product.Price {
			return a.product.Price < b.product.Price
		}
		return a.product.ID < b.product.ID
	})

	n := min(len(candidates), MaxResults)
	out := make([]domain.Product, n)
	for i := range n {
		out[i] = candidates[i].product
	}
	return out
}

func lowerAll(ss []string) []string {
	for i := range ss {
		ss[i] = strings.ToLower(strings.TrimSpace(ss[i]))
	}
	return ss
}

var _ tools.Tool = (*SearchTool)(nil)
