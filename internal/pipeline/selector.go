package pipeline

import (
	"time"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/tools"
)

// Step is one planned tool call.
type Step struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"-"`
}

// Plan is an ordered list of steps.
type Plan []Step

// Tools lists the planned tool names.
func (p Plan) Tools() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.Tool
	}
	return out
}

func (p Plan) step(tool string) (Step, bool) {
	for _, s := range p {
		if s.Tool == tool {
			return s, true
		}
	}
	return Step{}, false
}

// ErrAuthorizationRequired is the selection failure for order requests
// missing the order id or the email.
var ErrAuthorizationRequired = &StageError{
	Stage:   StageToolSelector,
	Kind:    domain.KindInvalidInput,
	Message: "authorization required: order id and email are both needed",
}

// SelectTools maps an intent and its slots onto a plan. It is pure: now is
// only forwarded to order_cancel. The size_recommender step may be listed
// without a product id; the executor fills it in from the top search hit.
func SelectTools(intent domain.Intent, s Slots, now time.Time) (Plan, *StageError) {
	switch intent {
	case domain.IntentProductAssist:
		return selectProductTools(s), nil
	case domain.IntentOrderHelp:
		if s.OrderID == "" || s.Email == "" {
			return nil, ErrAuthorizationRequired
		}
		plan := Plan{{Tool: tools.OrderLookup, Params: credentials(s)}}
		if s.Cancel {
			params := credentials(s)
			params["now"] = now
			plan = append(plan, Step{Tool: tools.OrderCancel, Params: params})
		}
		return plan, nil
	}
	return nil, nil
}

func selectProductTools(s Slots) Plan {
	var plan Plan
	if s.HasSearch() {
		params := map[string]any{}
		if len(s.Terms) > 0 {
			params["query_terms"] = s.Terms
		}
		if len(s.Tags) > 0 {
			params["tags"] = s.Tags
		}
		if s.PriceCap != nil {
			params["price_cap"] = *s.PriceCap
		}
		plan = append(plan, Step{Tool: tools.ProductSearch, Params: params})
	}
	if s.SizeAsked && (s.ProductID != "" || s.HasSearch()) {
		params := map[string]any{}
		if s.ProductID != "" {
			params["product_id"] = s.ProductID
		}
		if len(s.Sizes) > 0 {
			params["sizes"] = s.Sizes
		}
		if s.Fit != "" {
			params["fit"] = s.Fit
		}
		plan = append(plan, Step{Tool: tools.SizeRecommender, Params: params})
	}
	if s.ZipCode != "" {
		plan = append(plan, Step{Tool: tools.ETA, Params: map[string]any{"zip_code": s.ZipCode}})
	}
	return plan
}

func credentials(s Slots) map[string]any {
	return map[string]any{"order_id": s.OrderID, "email": s.Email}
}
