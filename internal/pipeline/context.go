package pipeline

import (
	"slices"
	"time"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/policy"
	"github.com/jkaninda/duka/internal/tools"
	"github.com/jkaninda/duka/internal/tools/catalog"
	"github.com/jkaninda/duka/internal/tools/orders"
	"github.com/jkaninda/duka/internal/tools/shipping"
)

// Stage names recorded in StageError.
const (
	StageRouter       = "router"
	StageToolSelector = "tool_selector"
	StageToolExecutor = "tool_executor"
	StagePolicyGuard  = "policy_guard"
	StageResponder    = "responder"
)

// Request is one utterance to process.
type Request struct {
	// ID correlates logs and audit events. Generated when empty.
	ID      string
	Message string
	// Now is the reference time for the cancellation window. When zero the
	// pipeline clock is used.
	Now time.Time
}

// StageError is a failure recorded by a stage. Message is safe to show to
// operators; it never carries customer data.
type StageError struct {
	Stage   string           `json:"stage"`
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

func (e StageError) Error() string {
	return e.Stage + ": " + string(e.Kind) + ": " + e.Message
}

// Invocation records one tool call.
type Invocation struct {
	Tool     string           `json:"tool"`
	Input    map[string]any   `json:"-"`
	Output   string           `json:"output,omitempty"`
	Kind     domain.ErrorKind `json:"error_kind,omitempty"`
	Err      error            `json:"-"`
	Duration time.Duration    `json:"duration_ns"`

	result *tools.Result
}

// Failed reports whether the tool returned an error.
func (inv *Invocation) Failed() bool { return inv.Err != nil }

// RequestContext is the mutable state of one request. It is owned by a single
// Run call and never shared.
type RequestContext struct {
	RequestID string
	Utterance string
	Now       time.Time

	Intent domain.Intent
	Slots  Slots
	Plan   Plan

	Invocations []*Invocation
	Evidence    []Evidence

	// Typed tool results.
	Products    []domain.Product
	SizeRec     *catalog.SizeRecommendation
	SizeProduct *domain.Product
	ETA         *shipping.Estimate
	Order       *domain.Order
	cancelReq   *orders.CancelRequest

	Decision        *policy.Decision
	DiscountRefused bool

	Errors []StageError
	Reply  string
	Trace  Trace
}

func newRequestContext(req Request) *RequestContext {
	return &RequestContext{
		RequestID: req.ID,
		Utterance: req.Message,
		Now:       req.Now.UTC(),
		Intent:    domain.IntentOther,
	}
}

func (rc *RequestContext) addError(stage string, kind domain.ErrorKind, msg string) {
	rc.Errors = append(rc.Errors, StageError{Stage: stage, Kind: kind, Message: msg})
}

func (rc *RequestContext) hasError(stage string, kind domain.ErrorKind) bool {
	return slices.ContainsFunc(rc.Errors, func(e StageError) bool {
		return e.Stage == stage && e.Kind == kind
	})
}

// invocation returns the call of the named tool, or nil when it did not run.
func (rc *RequestContext) invocation(tool string) *Invocation {
	for _, inv := range rc.Invocations {
		if inv.Tool == tool {
			return inv
		}
	}
	return nil
}

// ToolsCalled lists invoked tools in plan order. It is never nil.
func (rc *RequestContext) ToolsCalled() []string {
	out := make([]string, 0, len(rc.Invocations))
	for _, inv := range rc.Invocations {
		out = append(out, inv.Tool)
	}
	return out
}

// unavailable reports whether a tool or the store failed outside the
// business rules.
func (rc *RequestContext) unavailable() bool {
	return slices.ContainsFunc(rc.Errors, func(e StageError) bool {
		return e.Kind == domain.KindUpstreamUnavailable && (e.Stage == StageToolExecutor || e.Stage == StagePolicyGuard)
	})
}
