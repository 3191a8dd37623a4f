// Package nlu holds the language components the pipeline consumes: an intent
// Classifier and a reply Writer. Each has an offline rule-based variant and
// a variant backed by an llm.Provider.
package nlu

import (
	"context"
	"time"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/policy"
	"github.com/jkaninda/duka/internal/tools/catalog"
	"github.com/jkaninda/duka/internal/tools/shipping"
)

// Classifier labels an utterance with exactly one intent.
type Classifier interface {
	Classify(ctx context.Context, utterance string) (domain.Intent, error)
}

// Writer phrases the reply for a finished request. Writers must only state
// facts present in the brief.
type Writer interface {
	Write(ctx context.Context, b *Brief) (string, error)
}

// Strategy names accepted by the nlu config section.
const (
	StrategyRule     = "rule"
	StrategyTemplate = "template"
	StrategyModel    = "model"
)

// Brief is everything a Writer may draw on. It is built from the request
// context after the policy guard has run and never carries the customer
// email.
type Brief struct {
	Intent    domain.Intent `json:"intent"`
	Utterance string        `json:"utterance"`

	// Searched is set when product_search ran, even with no results.
	Searched bool             `json:"searched"`
	Products []domain.Product `json:"products,omitempty"`

	Size        *catalog.SizeRecommendation `json:"size,omitempty"`
	SizeProduct *domain.Product             `json:"size_product,omitempty"`
	ETA         *shipping.Estimate          `json:"eta,omitempty"`

	Order           *OrderSummary    `json:"order,omitempty"`
	CancelRequested bool             `json:"cancel_requested"`
	Decision        *policy.Decision `json:"policy_decision,omitempty"`
	ElapsedMinutes  float64          `json:"elapsed_minutes,omitempty"`
	WindowMinutes   int              `json:"window_minutes"`

	MissingCredentials bool     `json:"missing_credentials,omitempty"`
	DiscountRefused    bool     `json:"discount_refused,omitempty"`
	Offers             []string `json:"offers,omitempty"`

	// Unavailable is set when a tool or the store failed for reasons
	// outside the business rules.
	Unavailable bool `json:"unavailable,omitempty"`
}

// OrderSummary is the part of an order a reply may mention.
type OrderSummary struct {
	ID        string             `json:"id"`
	Status    domain.OrderStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	Items     []domain.LineItem  `json:"items,omitempty"`
}

// SummarizeOrder strips o down to an OrderSummary.
func SummarizeOrder(o *domain.Order) *OrderSummary {
	if o == nil {
		return nil
	}
	c := o.Clone()
	return &OrderSummary{ID: c.ID, Status: c.Status, CreatedAt: c.CreatedAt.UTC(), Items: c.Items}
}
