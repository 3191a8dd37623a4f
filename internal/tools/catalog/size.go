package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/tools"
)

// Fit preferences understood by the size recommender.
const (
	FitFitted  = "fitted"
	FitRelaxed = "relaxed"
)

// NoConfidentRecommendation is reported when the signal cannot single out
// one size.
const NoConfidentRecommendation = "no confident recommendation"

var sizeOrder = []string{"XXS", "XS", "S", "M", "L", "XL", "XXL"}

func sizeRank(size string) int {
	if i := slices.Index(sizeOrder, strings.ToUpper(size)); i >= 0 {
		return i
	}
	return len(sizeOrder)
}

// SizeRecommendation is the size_recommender result. Size is empty unless
// Confident is set, and is always one of the product's declared sizes.
type SizeRecommendation struct {
	ProductID  string   `json:"product_id"`
	Size       string   `json:"size,omitempty"`
	Confident  bool     `json:"confident"`
	Candidates []string `json:"candidates"`
	Fit        string   `json:"fit,omitempty"`
}

// SizeTool recommends a size for a product from the user's stated sizes and
// fit preference.
type SizeTool struct {
	catalog Catalog
}

// NewSizeTool creates the size_recommender tool.
func NewSizeTool(c Catalog) *SizeTool {
	return &SizeTool{catalog: c}
}

func (t *SizeTool) Name() string { return tools.SizeRecommender }
func (t *SizeTool) Description() string {
	return "Recommend one size from a product's available sizes given the sizes the shopper is considering and a fit preference."
}
func (t *SizeTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_id": map[string]any{"type": "string", "description": "Product identifier, e.g. P2"},
			"sizes":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Sizes the shopper is considering, e.g. [M, L]"},
			"fit":        map[string]any{"type": "string", "enum": []string{FitFitted, FitRelaxed}, "description": "Preferred fit"},
		},
		"required": []string{"product_id"},
	}
}

func (t *SizeTool) Validate(params map[string]any) error {
	if _, ok := tools.StringParam(params, "product_id"); !ok {
		return tools.InvalidParam("product_id is required")
	}
	if fit, ok := tools.StringParam(params, "fit"); ok && fit != FitFitted && fit != FitRelaxed {
		return tools.InvalidParam("fit must be %q or %q", FitFitted, FitRelaxed)
	}
	return nil
}

func (t *SizeTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.StringParam(params, "product_id")
	product, err := t.catalog.Product(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", strings.ToUpper(id), err)
	}
	fit, _ := tools.StringParam(params, "fit")
	rec := Recommend(product, tools.StringsParam(params, "sizes"), fit)

	output := NoConfidentRecommendation
	if rec.Confident {
		output = "recommend size " + rec.Size
	}
	return &tools.Result{Output: output, Data: rec, Success: true}, nil
}

// Recommend picks a size. Requested sizes are intersected with the product's
// sizes; a single survivor is recommended outright, several survivors are
// narrowed by the fit preference (smallest for fitted, largest for relaxed).
// Anything else yields no confident recommendation.
func Recommend(p *domain.Product, requested []string, fit string) SizeRecommendation {
	rec := SizeRecommendation{ProductID: p.ID, Fit: fit}

	var candidates []string
	if len(requested) == 0 {
		candidates = slices.Clone(p.Sizes)
	} else {
		for _, s := range p.Sizes {
			if slices.ContainsFunc(requested, func(r string) bool { return strings.EqualFold(r, s) }) {
				candidates = append(candidates, s)
			}
		}
	}
	slices.SortStableFunc(candidates, func(a, b string) int { return sizeRank(a) - sizeRank(b) })

	switch {
	case len(candidates) == 1:
		rec.Size, rec.Confident = candidates[0], true
	case len(candidates) > 1 && fit == FitFitted:
		rec.Size, rec.Confident = candidates[0], true
	case len(candidates) > 1 && fit == FitRelaxed:
		rec.Size, rec.Confident = candidates[len(candidates)-1], true
	}

	if len(candidates) == 0 {
		candidates = slices.Clone(p.Sizes)
	}
	rec.Candidates = candidates
	return rec
}

var _ tools.Tool = (*SizeTool)(nil)
