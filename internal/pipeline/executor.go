package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/tools"
	"github.com/jkaninda/duka/internal/tools/catalog"
	"github.com/jkaninda/duka/internal/tools/orders"
	"github.com/jkaninda/duka/internal/tools/shipping"
)

// independent tools take no input from other tools and run concurrently.
var independent = map[string]bool{
	tools.ProductSearch: true,
	tools.ETA:           true,
	tools.OrderLookup:   true,
}

// execute runs the plan. Independent steps run first and concurrently;
// size_recommender and order_cancel run after them. Failures are recorded
// on the invocation and never abort the request.
func (p *Pipeline) execute(ctx context.Context, rc *RequestContext) {
	calls := make([]*Invocation, len(rc.Plan))

	g, gctx := errgroup.WithContext(ctx)
	for i, step := range rc.Plan {
		if !independent[step.Tool] {
			continue
		}
		g.Go(func() error {
			calls[i] = p.invoke(gctx, rc.RequestID, step.Tool, step.Params)
			return nil
		})
	}
	_ = g.Wait()

	for i, step := range rc.Plan {
		switch step.Tool {
		case tools.SizeRecommender:
			params := maps.Clone(step.Params)
			if _, ok := tools.StringParam(params, "product_id"); !ok {
				top := topHit(rc.Plan, calls)
				if top == "" {
					p.logger.DebugContext(ctx, "size recommendation skipped: no product",
						slog.String("request_id", rc.RequestID))
					continue
				}
				params["product_id"] = top
			}
			calls[i] = p.invoke(ctx, rc.RequestID, step.Tool, params)
		case tools.OrderCancel:
			if lookup := callOf(rc.Plan, calls, tools.OrderLookup); lookup != nil && lookup.Failed() {
				continue
			}
			calls[i] = p.invoke(ctx, rc.RequestID, step.Tool, step.Params)
		}
	}

	for _, inv := range calls {
		if inv == nil {
			continue
		}
		rc.Invocations = append(rc.Invocations, inv)
		if inv.Failed() {
			rc.addError(StageToolExecutor, inv.Kind, failureMessage(inv.Tool, inv.Kind))
			continue
		}
		p.collect(ctx, rc, inv)
	}
}

// collect stores the typed tool result and its evidence.
func (p *Pipeline) collect(ctx context.Context, rc *RequestContext, inv *Invocation) {
	switch data := inv.result.Data.(type) {
	case []domain.Product:
		rc.Products = data
		for _, prod := range data {
			rc.Evidence = append(rc.Evidence, ProductEvidence(prod))
		}
	case catalog.SizeRecommendation:
		rc.SizeRec = &data
		rc.SizeProduct = p.sizeProduct(ctx, rc, data.ProductID)
	case shipping.Estimate:
		rc.ETA = &data
	case *domain.Order:
		rc.Order = data
		rc.Evidence = append(rc.Evidence, OrderEvidence(data))
	case orders.CancelRequest:
		rc.cancelReq = &data
	}
}

// sizeProduct returns the product the size was recommended for, adding it
// to the evidence when the search did not return it.
func (p *Pipeline) sizeProduct(ctx context.Context, rc *RequestContext, id string) *domain.Product {
	for i := range rc.Products {
		if rc.Products[i].ID == id {
			return rc.Products[i].Clone()
		}
	}
	prod, err := p.catalog.Product(ctx, id)
	if err != nil {
		p.logger.WarnContext(ctx, "size product lookup failed",
			slog.String("request_id", rc.RequestID),
			slog.String("product_id", id),
			slog.Any("error", err))
		return nil
	}
	rc.Evidence = append(rc.Evidence, ProductEvidence(*prod))
	return prod
}

func (p *Pipeline) invoke(ctx context.Context, requestID, name string, params map[string]any) *Invocation {
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, "tool."+name,
			trace.WithAttributes(attribute.String("tool.name", name)))
		defer span.End()
	}

	start := time.Now()
	res, err := p.registry.Run(ctx, name, params)
	inv := &Invocation{Tool: name, Input: params, Duration: time.Since(start), result: res}

	status := "success"
	if err == nil && res == nil {
		err = errors.New("tool returned no result")
	}
	if err != nil {
		inv.Err = err
		inv.Kind = domain.KindOf(err)
		status = string(inv.Kind)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(inv.Kind))
		}
		if inv.Kind == domain.KindUpstreamUnavailable {
			p.anomaly.RecordError("tool_" + name)
		}
		p.logger.WarnContext(ctx, "tool failed",
			slog.String("request_id", requestID),
			slog.String("tool", name),
			slog.String("kind", string(inv.Kind)),
		)
	} else {
		inv.Output = res.Output
		p.anomaly.RecordSuccess("tool_" + name)
	}

	if p.metrics != nil {
		p.metrics.ToolExecutionsTotal.WithLabelValues(name, status).Inc()
		p.metrics.ToolExecutionDuration.WithLabelValues(name).Observe(inv.Duration.Seconds())
	}
	return inv
}

func callOf(plan Plan, calls []*Invocation, tool string) *Invocation {
	i := slices.IndexFunc(plan, func(s Step) bool { return s.Tool == tool })
	if i < 0 {
		return nil
	}
	return calls[i]
}

func topHit(plan Plan, calls []*Invocation) string {
	search := callOf(plan, calls, tools.ProductSearch)
	if search == nil || search.Failed() {
		return ""
	}
	if products, ok := search.result.Data.([]domain.Product); ok && len(products) > 0 {
		return products[0].ID
	}
	return ""
}

func failureMessage(tool string, kind domain.ErrorKind) string {
	switch kind {
	case domain.KindNotFound:
		if tool == tools.SizeRecommender {
			return tool + ": product not found"
		}
		return tool + ": no order matched the given id and email"
	case domain.KindUnauthorized:
		return tool + ": no order matched the given id and email"
	case domain.KindInvalidInput:
		return tool + ": invalid arguments"
	}
	return tool + ": service unavailable"
}
