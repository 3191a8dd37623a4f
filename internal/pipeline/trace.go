package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/nlu"
	"github.com/jkaninda/duka/internal/policy"
)

// Evidence types.
const (
	EvidenceProduct = "product"
	EvidenceOrder   = "order"
)

// Evidence is a snapshot of a product or order a tool returned. Order
// evidence never carries the customer email.
type Evidence struct {
	Type      string             `json:"type" validate:"required,oneof=product order"`
	ID        string             `json:"id" validate:"required"`
	Title     string             `json:"title,omitempty"`
	Price     *float64           `json:"price,omitempty" validate:"omitempty,gte=0"`
	Sizes     []string           `json:"sizes,omitempty"`
	Tags      []string           `json:"tags,omitempty"`
	Color     string             `json:"color,omitempty"`
	Status    domain.OrderStatus `json:"status,omitempty"`
	CreatedAt *time.Time         `json:"created_at,omitempty"`
	Items     []domain.LineItem  `json:"items,omitempty"`
}

// ProductEvidence snapshots p.
func ProductEvidence(p domain.Product) Evidence {
	c := p.Clone()
	price := c.Price
	return Evidence{
		Type:  EvidenceProduct,
		ID:    c.ID,
		Title: c.Title,
		Price: &price,
		Sizes: c.Sizes,
		Tags:  c.Tags,
		Color: c.Color,
	}
}

// OrderEvidence snapshots o without its email.
func OrderEvidence(o *domain.Order) Evidence {
	c := o.Clone()
	created := c.CreatedAt.UTC()
	return Evidence{
		Type:      EvidenceOrder,
		ID:        c.ID,
		Status:    c.Status,
		CreatedAt: &created,
		Items:     c.Items,
	}
}

// Trace is the machine-verifiable record of a request.
type Trace struct {
	Intent         domain.Intent    `json:"intent" validate:"required,oneof=product_assist order_help other"`
	ToolsCalled    []string         `json:"tools_called" validate:"required,dive,oneof=product_search size_recommender eta order_lookup order_cancel"`
	Evidence       []Evidence       `json:"evidence" validate:"required,dive"`
	PolicyDecision *policy.Decision `json:"policy_decision"`
	FinalMessage   string           `json:"final_message" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the schema and the cross-field invariants.
func (t *Trace) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("trace schema: %w", err)
	}
	d := t.PolicyDecision
	if d == nil {
		return nil
	}
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("policy decision schema: %w", err)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("policy decision: %w", err)
	}
	if d.Reason == policy.ReasonNotFound || d.Reason == policy.ReasonUnauthorized {
		for _, ev := range t.Evidence {
			if ev.Type == EvidenceOrder {
				return errors.New("order evidence present for a rejected lookup")
			}
		}
	}
	return nil
}

// SafeTrace is returned when no valid trace could be built.
func SafeTrace(intent domain.Intent) Trace {
	if _, ok := domain.ParseIntent(string(intent)); !ok {
		intent = domain.IntentOther
	}
	return Trace{
		Intent:       intent,
		ToolsCalled:  []string{},
		Evidence:     []Evidence{},
		FinalMessage: nlu.MsgFallback,
	}
}

func (rc *RequestContext) buildTrace(message string) Trace {
	ev := rc.Evidence
	if ev == nil {
		ev = []Evidence{}
	}
	return Trace{
		Intent:         rc.Intent,
		ToolsCalled:    rc.ToolsCalled(),
		Evidence:       ev,
		PolicyDecision: rc.Decision,
		FinalMessage:   message,
	}
}
