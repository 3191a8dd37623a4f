// Package policy implements the order cancellation rules: the time-bounded
// cancellation window, the allow/deny decision table and the single
// permitted status mutation.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jkaninda/duka/internal/domain"
)

// Reason explains a cancellation decision.
type Reason string

const (
	ReasonAllowed         Reason = "allowed"
	ReasonPolicyViolation Reason = "policy_violation"
	ReasonNotFound        Reason = "not_found"
	ReasonUnauthorized    Reason = "unauthorized"
)

// DefaultWindow is the period after creation during which an order can be
// cancelled. The bound is inclusive.
const DefaultWindow = 60 * time.Minute

// DefaultAlternatives are offered whenever a cancellation is denied for a
// policy violation.
var DefaultAlternatives = []string{
	"Update shipping address",
	"Convert to store credit",
	"Connect with customer support",
}

// Decision is the outcome of a cancellation request.
//
// CancelAllowed=true always carries ReasonAllowed and no alternatives;
// CancelAllowed=false never carries ReasonAllowed. Alternatives are only
// populated for ReasonPolicyViolation.
type Decision struct {
	CancelAllowed bool     `json:"cancel_allowed"`
	Reason        Reason   `json:"reason" validate:"required,oneof=allowed policy_violation not_found unauthorized"`
	Alternatives  []string `json:"alternatives"`

	// Elapsed is the order age at decision time. It is zero for not_found
	// and unauthorized decisions and is never serialized.
	Elapsed time.Duration `json:"-"`
	// Status is the order status seen by the guard.
	Status domain.OrderStatus `json:"-"`
}

// MarshalJSON always emits alternatives as a list so the trace schema is
// stable.
func (d Decision) MarshalJSON() ([]byte, error) {
	type wire Decision
	w := wire(d)
	if w.Alternatives == nil {
		w.Alternatives = []string{}
	}
	return json.Marshal(w)
}

// Validate checks the decision invariants.
func (d *Decision) Validate() error {
	switch {
	case d.CancelAllowed && d.Reason != ReasonAllowed:
		return fmt.Errorf("allowed decision has reason %q", d.Reason)
	case d.CancelAllowed && len(d.Alternatives) > 0:
		return errors.New("allowed decision carries alternatives")
	case !d.CancelAllowed && d.Reason == ReasonAllowed:
		return errors.New("denied decision has reason allowed")
	case d.Reason != ReasonPolicyViolation && len(d.Alternatives) > 0:
		return fmt.Errorf("alternatives present for reason %q", d.Reason)
	}
	return nil
}

// Subject is what the guard knows about the order being cancelled.
type Subject struct {
	Found      bool
	Authorized bool
	Status     domain.OrderStatus
	CreatedAt  time.Time
}

// SubjectOf builds a Subject from an order lookup result. err must be nil,
// domain.ErrNotFound or domain.ErrUnauthorized.
func SubjectOf(order *domain.Order, err error) Subject {
	switch {
	case errors.Is(err, domain.ErrNotFound) || (err == nil && order == nil):
		return Subject{}
	case errors.Is(err, domain.ErrUnauthorized):
		return Subject{Found: true}
	}
	return Subject{Found: true, Authorized: true, Status: order.Status, CreatedAt: order.CreatedAt}
}

// Config configures a Guard.
type Config struct {
	Window       time.Duration
	Alternatives []string
}

// Guard evaluates cancellation requests.
type Guard struct {
	window       time.Duration
	alternatives []string
}

// NewGuard creates a Guard, applying defaults for zero values.
func NewGuard(cfg Config) *Guard {
	g := &Guard{window: cfg.Window, alternatives: slices.Clone(cfg.Alternatives)}
	if g.window <= 0 {
		g.window = DefaultWindow
	}
	if len(g.alternatives) == 0 {
		g.alternatives = slices.Clone(DefaultAlternatives)
	}
	return g
}

// Window returns the configured cancellation window.
func (g *Guard) Window() time.Duration { return g.window }

// Evaluate applies the decision table. It is pure: now is supplied by the
// caller and nothing is written.
func (g *Guard) Evaluate(s Subject, now time.Time) Decision {
	if !s.Found {
		return Decision{Reason: ReasonNotFound}
	}
	if !s.Authorized {
		return Decision{Reason: ReasonUnauthorized}
	}
	elapsed := now.UTC().Sub(s.CreatedAt.UTC())
	if s.Status != domain.OrderOpen || elapsed > g.window {
		return g.violation(s.Status, elapsed)
	}
	return Decision{CancelAllowed: true, Reason: ReasonAllowed, Elapsed: elapsed, Status: s.Status}
}

func (g *Guard) violation(status domain.OrderStatus, elapsed time.Duration) Decision {
	return Decision{
		Reason:       ReasonPolicyViolation,
		Alternatives: slices.Clone(g.alternatives),
		Elapsed:      elapsed,
		Status:       status,
	}
}

// Canceller performs the open→cancelled compare-and-swap and reads the
// order back when the swap loses.
type Canceller interface {
	Order(ctx context.Context, id string) (*domain.Order, error)
	CancelOrder(ctx context.Context, id string) (*domain.Order, error)
}

// Enforce carries out an allowed decision. When another writer moved the
// order out of open first, the decision is downgraded to a policy violation
// carrying the order's current status. Denied
// decisions are returned unchanged without touching the store.
func (g *Guard) Enforce(ctx context.Context, c Canceller, orderID string, d Decision) (Decision, *domain.Order, error) {
	if !d.CancelAllowed {
		return d, nil, nil
	}
	order, err := c.CancelOrder(ctx, orderID)
	switch {
	case err == nil:
		return d, order, nil
	case errors.Is(err, domain.ErrOrderNotOpen):
		current, rerr := c.Order(ctx, orderID)
		if rerr != nil {
			return Decision{}, nil, fmt.Errorf("reading order after lost cancel: %w", rerr)
		}
		return g.violation(current.Status, d.Elapsed), nil, nil
	case errors.Is(err, domain.ErrNotFound):
		return Decision{Reason: ReasonNotFound}, nil, nil
	}
	return Decision{}, nil, fmt.Errorf("cancelling order: %w", err)
}
