// Package orders implements the order tools. Both tools authorize the
// caller by matching the order email; neither decides whether an order may
// be cancelled.
package orders

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/tools"
)

var orderIDPattern = regexp.MustCompile(`^[A-Za-z]\d{3,}$`)

// Source reads orders.
type Source interface {
	Order(ctx context.Context, id string) (*domain.Order, error)
}

// Lookup returns the order when id exists and email matches. The errors
// are domain.ErrNotFound and domain.ErrUnauthorized; their messages never
// say which field was wrong.
func Lookup(ctx context.Context, src Source, id, email string) (*domain.Order, error) {
	order, err := src.Order(ctx, strings.ToUpper(id))
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(email) {
		return nil, domain.ErrUnauthorized
	}
	return order, nil
}

func validateCredentials(params map[string]any) error {
	id, ok := tools.StringParam(params, "order_id")
	if !ok {
		return tools.InvalidParam("order_id is required")
	}
	if !orderIDPattern.MatchString(id) {
		return tools.InvalidParam("order_id is malformed")
	}
	email, ok := tools.StringParam(params, "email")
	if !ok || !strings.Contains(email, "@") {
		return tools.InvalidParam("email is required")
	}
	return nil
}

func credentialsSchema() map[string]any {
	return map[string]any{
		"order_id": map[string]any{"type": "string", "description": "Order identifier, e.g. A1003"},
		"email":    map[string]any{"type": "string", "format": "email", "description": "Email address used for the order"},
	}
}

// LookupTool is the order_lookup tool.
type LookupTool struct {
	source Source
}

// NewLookupTool creates the order_lookup tool.
func NewLookupTool(src Source) *LookupTool {
	return &LookupTool{source: src}
}

func (t *LookupTool) Name() string { return tools.OrderLookup }
func (t *LookupTool) Description() string {
	return "Look up an order by id. The email must match the one used for the order."
}
func (t *LookupTool) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": credentialsSchema(),
		"required":   []string{"order_id", "email"},
	}
}

func (t *LookupTool) Validate(params map[string]any) error {
	return validateCredentials(params)
}

func (t *LookupTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.StringParam(params, "order_id")
	email, _ := tools.StringParam(params, "email")
	order, err := Lookup(ctx, t.source, id, email)
	if err != nil {
		return nil, fmt.Errorf("order lookup: %w", err)
	}
	return &tools.Result{
		Output:  fmt.Sprintf("order %s is %s", order.ID, order.Status),
		Data:    order,
		Success: true,
	}, nil
}

// CancelRequest is the order_cancel result handed to the policy guard.
type CancelRequest struct {
	Order *domain.Order
	Now   time.Time
}

// CancelTool is the order_cancel tool. It authorizes the request and
// returns the order with the reference time; the cancellation decision and
// the status write belong to the policy guard.
type CancelTool struct {
	source Source
	clock  func() time.Time
}

// NewCancelTool creates the order_cancel tool. clock supplies "now" when the
// caller does not pass one.
func NewCancelTool(src Source, clock func() time.Time) *CancelTool {
	if clock == nil {
		clock = time.Now
	}
	return &CancelTool{source: src, clock: clock}
}

func (t *CancelTool) Name() string { return tools.OrderCancel }
func (t *CancelTool) Description() string {
	return "Request cancellation of an order. Orders can be cancelled within 60 minutes of being placed."
}
func (t *CancelTool) InputSchema() map[string]any {
	props := credentialsSchema()
	props["now"] = map[string]any{"type": "string", "format": "date-time", "description": "Reference time, RFC 3339. Defaults to the current time."}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"order_id", "email"},
	}
}

func (t *CancelTool) Validate(params map[string]any) error {
	if err := validateCredentials(params); err != nil {
		return err
	}
	_, _, err := tools.TimeParam(params, "now")
	return err
}

func (t *CancelTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	id, _ := tools.StringParam(params, "order_id")
	email, _ := tools.StringParam(params, "email")
	now, ok, err := tools.TimeParam(params, "now")
	if err != nil {
		return nil, err
	}
	if !ok {
		now = t.clock().UTC()
	}
	order, err := Lookup(ctx, t.source, id, email)
	if err != nil {
		return nil, fmt.Errorf("order cancel: %w", err)
	}
	return &tools.Result{
		Output:   fmt.Sprintf("order %s is %s, placed %s", order.ID, order.Status, order.CreatedAt.Format(time.RFC3339)),
		Data:     CancelRequest{Order: order, Now: now},
		Metadata: map[string]any{"now": now.Format(time.RFC3339)},
		Success:  true,
	}, nil
}

var (
	_ tools.Tool = (*LookupTool)(nil)
	_ tools.Tool = (*CancelTool)(nil)
)
