// Package shipping implements the eta tool, a deterministic delivery
// estimate keyed by the first digit of the destination zip code.
package shipping

import (
	"context"
	"fmt"

	"github.com/jkaninda/duka/internal/tools"
)

// Region is a delivery zone and its transit range.
type Region struct {
	Name    string
	MinDays int
	MaxDays int
}

// Fallback is returned for zip prefixes outside the region table.
var Fallback = Region{Name: "standard", MinDays: 3, MaxDays: 5}

// regions maps the leading zip digit to a delivery zone.
var regions = map[byte]Region{
	'1': {"north", 3, 4},
	'2': {"north", 3, 4},
	'3': {"north", 3, 4},
	'4': {"central", 2, 3},
	'5': {"central", 2, 3},
	'6': {"south", 4, 5},
	'7': {"south", 4, 5},
	'8': {"south", 4, 5},
	'9': {"south", 4, 5},
}

// Estimate is the eta result.
type Estimate struct {
	ZipCode string `json:"zip_code"`
	Region  string `json:"region"`
	MinDays int    `json:"min_days"`
	MaxDays int    `json:"max_days"`
	Known   bool   `json:"known"`
}

// Range renders the estimate as "3-4 business days".
func (e Estimate) Range() string {
	return fmt.Sprintf("%d-%d business days", e.MinDays, e.MaxDays)
}

// Lookup estimates delivery for zip. It never fails; unknown prefixes get
// the Fallback region.
func Lookup(zip string) Estimate {
	r, ok := Fallback, false
	if zip != "" {
		r, ok = regions[zip[0]]
		if !ok {
			r = Fallback
		}
	}
	return Estimate{ZipCode: zip, Region: r.Name, MinDays: r.MinDays, MaxDays: r.MaxDays, Known: ok}
}

// ETATool exposes Lookup as a tool.
type ETATool struct{}

// NewETATool creates the eta tool.
func NewETATool() *ETATool { return &ETATool{} }

func (t *ETATool) Name() string { return tools.ETA }
func (t *ETATool) Description() string {
	return "Estimate delivery time in business days for a 5 or 6 digit zip code."
}
func (t *ETATool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"zip_code": map[string]any{"type": "string", "pattern": "^[0-9]{5,6}$", "description": "Destination zip code"},
		},
		"required": []string{"zip_code"},
	}
}

func (t *ETATool) Validate(params map[string]any) error {
	zip, ok := tools.StringParam(params, "zip_code")
	if !ok {
		return tools.InvalidParam("zip_code is required")
	}
	if len(zip) < 5 || len(zip) > 6 {
		return tools.InvalidParam("zip_code must have 5 or 6 digits")
	}
	for i := 0; i < len(zip); i++ {
		if zip[i] < '0' || zip[i] > '9' {
			return tools.InvalidParam("zip_code must be numeric")
		}
	}
	return nil
}

func (t *ETATool) Execute(_ context.Context, params map[string]any) (*tools.Result, error) {
	zip, _ := tools.StringParam(params, "zip_code")
	est := Lookup(zip)
	return &tools.Result{
		Output:  fmt.Sprintf("delivery to %s: %s", zip, est.Range()),
		Data:    est,
		Success: true,
	}, nil
}

var _ tools.Tool = (*ETATool)(nil)
