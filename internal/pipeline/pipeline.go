// Package pipeline runs an utterance through the fixed stage sequence:
// router, tool selector, tool executor, policy guard and responder. Each
// request gets its own RequestContext; pipelines share only the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/duka/internal/audit"
	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/nlu"
	"github.com/jkaninda/duka/internal/observability"
	"github.com/jkaninda/duka/internal/policy"
	"github.com/jkaninda/duka/internal/storage"
	"github.com/jkaninda/duka/internal/tools"
	"github.com/jkaninda/duka/internal/tools/catalog"
	"github.com/jkaninda/duka/internal/tools/orders"
	"github.com/jkaninda/duka/internal/tools/shipping"
)

// DefaultTimeout bounds each classifier and writer call.
const DefaultTimeout = 8 * time.Second

// Result is the outcome of one request.
type Result struct {
	RequestID string       `json:"request_id"`
	Trace     Trace        `json:"trace"`
	Errors    []StageError `json:"errors,omitempty"`
}

// Pipeline processes requests. It is safe for concurrent use.
type Pipeline struct {
	store     storage.Store
	catalog   catalog.Catalog
	registry  *tools.Registry
	extractor *Extractor

	classifier nlu.Classifier
	writer     nlu.Writer
	guard      *policy.Guard
	auditLog   audit.Logger

	metrics *observability.MetricsCollector
	tracer  trace.Tracer
	anomaly *observability.AnomalyDetector
	logger  *slog.Logger

	clock   func() time.Time
	timeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClassifier sets the intent classifier. Defaults to the rule classifier.
func WithClassifier(c nlu.Classifier) Option { return func(p *Pipeline) { p.classifier = c } }

// WithWriter sets the reply writer. Defaults to the template writer.
func WithWriter(w nlu.Writer) Option { return func(p *Pipeline) { p.writer = w } }

// WithGuard sets the policy guard.
func WithGuard(g *policy.Guard) Option { return func(p *Pipeline) { p.guard = g } }

// WithClock sets the source of "now" for requests that carry none.
func WithClock(clock func() time.Time) Option { return func(p *Pipeline) { p.clock = clock } }

// WithTimeout bounds classifier and writer calls.
func WithTimeout(d time.Duration) Option { return func(p *Pipeline) { p.timeout = d } }

// WithAudit records cancellation decisions.
func WithAudit(l audit.Logger) Option { return func(p *Pipeline) { p.auditLog = l } }

// WithCatalog reads products through c instead of the store, typically a
// storage.CatalogCache.
func WithCatalog(c catalog.Catalog) Option { return func(p *Pipeline) { p.catalog = c } }

// WithObservability enables metrics, tracing and anomaly detection.
func WithObservability(obs *observability.Observability) Option {
	return func(p *Pipeline) {
		if obs == nil {
			return
		}
		p.metrics = obs.Metrics
		p.anomaly = obs.Anomaly
		if obs.Tracer != nil {
			p.tracer = obs.Tracer.Tracer()
		}
	}
}

// New builds a pipeline over store. The catalog is read once to build the
// extraction vocabulary.
func New(ctx context.Context, store storage.Store, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		store:      store,
		catalog:    store,
		classifier: nlu.NewRuleClassifier(),
		writer:     nlu.NewTemplateWriter(),
		auditLog:   audit.Nop{},
		logger:     logger,
		clock:      time.Now,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.guard == nil {
		p.guard = policy.NewGuard(policy.Config{})
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}

	products, err := p.catalog.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog vocabulary: %w", err)
	}
	p.extractor = NewExtractor(products)

	p.registry = tools.NewRegistry()
	p.registry.Register(catalog.NewSearchTool(p.catalog))
	p.registry.Register(catalog.NewSizeTool(p.catalog))
	p.registry.Register(shipping.NewETATool())
	p.registry.Register(orders.NewLookupTool(store))
	p.registry.Register(orders.NewCancelTool(store, p.clock))
	return p, nil
}

// Registry exposes the commerce tools, e.g. for the MCP gateway.
func (p *Pipeline) Registry() *tools.Registry { return p.registry }

// Window is the cancellation window enforced by the guard.
func (p *Pipeline) Window() time.Duration { return p.guard.Window() }

// Run processes one request through every stage. It always returns a
// Result with a valid trace; stage failures are reported in Result.Errors.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	rc, ctx, finish := p.begin(ctx, req, "pipeline.run")
	defer finish()

	p.route(ctx, rc)
	rc.Slots = p.extractor.Extract(rc.Utterance)
	plan, serr := SelectTools(rc.Intent, rc.Slots, rc.Now)
	if serr != nil {
		rc.Errors = append(rc.Errors, *serr)
	}
	rc.Plan = plan
	p.process(ctx, rc)
	return p.result(rc)
}

// RunPlan skips routing and selection and executes plan under intent. The
// guard and the responder run as usual.
func (p *Pipeline) RunPlan(ctx context.Context, req Request, intent domain.Intent, plan Plan) *Result {
	rc, ctx, finish := p.begin(ctx, req, "pipeline.run_plan")
	defer finish()

	rc.Intent = intent
	rc.Slots = slotsFromPlan(plan)
	rc.Plan = plan
	p.process(ctx, rc)
	return p.result(rc)
}

func (p *Pipeline) begin(ctx context.Context, req Request, spanName string) (*RequestContext, context.Context, func()) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Now.IsZero() {
		req.Now = p.clock()
	}
	rc := newRequestContext(req)
	start := time.Now()

	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, spanName,
			trace.WithAttributes(attribute.String("request.id", rc.RequestID)))
	}
	return rc, ctx, func() {
		elapsed := time.Since(start)
		if span != nil {
			span.SetAttributes(
				attribute.String("pipeline.intent", string(rc.Intent)),
				attribute.StringSlice("pipeline.tools", rc.ToolsCalled()),
			)
			span.End()
		}
		if p.metrics != nil {
			p.metrics.PipelineRequestsTotal.WithLabelValues(string(rc.Intent)).Inc()
			p.metrics.PipelineDuration.WithLabelValues(string(rc.Intent)).Observe(elapsed.Seconds())
			for _, e := range rc.Errors {
				p.metrics.StageErrorsTotal.WithLabelValues(e.Stage, string(e.Kind)).Inc()
			}
		}
		p.logger.InfoContext(ctx, "request processed",
			slog.String("request_id", rc.RequestID),
			slog.String("intent", string(rc.Intent)),
			slog.Any("tools", rc.ToolsCalled()),
			slog.Int("errors", len(rc.Errors)),
			slog.Duration("duration", elapsed),
		)
	}
}

func (p *Pipeline) process(ctx context.Context, rc *RequestContext) {
	if rc.Intent != domain.IntentOther && len(rc.Plan) > 0 {
		p.execute(ctx, rc)
	}
	p.enforce(ctx, rc)
	p.respond(ctx, rc)
}

func (p *Pipeline) result(rc *RequestContext) *Result {
	return &Result{RequestID: rc.RequestID, Trace: rc.Trace, Errors: rc.Errors}
}

// route classifies the utterance. Classifier failures resolve to other.
func (p *Pipeline) route(ctx context.Context, rc *RequestContext) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	intent, err := p.classifier.Classify(cctx, rc.Utterance)
	if err != nil {
		p.logger.WarnContext(ctx, "classifier failed",
			slog.String("request_id", rc.RequestID),
			slog.Any("error", err))
		rc.addError(StageRouter, domain.KindUpstreamUnavailable, "intent classifier unavailable")
		intent = domain.IntentOther
	}
	if _, ok := domain.ParseIntent(string(intent)); !ok {
		intent = domain.IntentOther
	}
	rc.Intent = intent
}

func slotsFromPlan(plan Plan) Slots {
	var s Slots
	for _, step := range plan {
		if id, ok := tools.StringParam(step.Params, "order_id"); ok {
			s.OrderID = id
		}
		if step.Tool == tools.OrderCancel {
			s.Cancel = true
		}
	}
	return s
}
