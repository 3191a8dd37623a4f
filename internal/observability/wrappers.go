package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/llm"
	"github.com/jkaninda/duka/internal/storage"
)

// --- InstrumentedProvider ---

// InstrumentedProvider wraps an llm.Provider with metrics, tracing, and anomaly detection.
type InstrumentedProvider struct {
	inner   llm.Provider
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedProvider wraps an LLM provider with observability.
func NewInstrumentedProvider(inner llm.Provider, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedProvider {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedProvider{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
		anomaly: anomaly,
	}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

func (p *InstrumentedProvider) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	provider := p.inner.Name()

	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, "llm.send_message",
			trace.WithAttributes(
				attribute.String("llm.provider", provider),
				attribute.Bool("llm.json", req.JSON),
			))
		defer span.End()
	}

	start := time.Now()
	resp, err := p.inner.SendMessage(ctx, req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if p.metrics != nil {
		p.metrics.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
		p.metrics.LLMRequestDuration.WithLabelValues(provider).Observe(duration)

		if resp != nil {
			p.metrics.LLMTokensUsed.WithLabelValues(provider, "input").Add(float64(resp.Usage.InputTokens))
			p.metrics.LLMTokensUsed.WithLabelValues(provider, "output").Add(float64(resp.Usage.OutputTokens))
		}
	}

	if err != nil {
		p.anomaly.RecordError("llm_request")
	} else {
		p.anomaly.RecordSuccess("llm_request")
	}

	return resp, err
}

// --- InstrumentedStore ---

// InstrumentedStore wraps a storage.Store with metrics, tracing, and anomaly
// detection. Expected outcomes (not found, order not open) count as success.
type InstrumentedStore struct {
	storage.Store
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedStore wraps a store with observability.
func NewInstrumentedStore(inner storage.Store, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedStore {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedStore{Store: inner, metrics: metrics, tracer: tracer, anomaly: anomaly}
}

func (s *InstrumentedStore) Products(ctx context.Context) ([]domain.Product, error) {
	ctx, done := s.observe(ctx, "products", "")
	out, err := s.Store.Products(ctx)
	done(err)
	return out, err
}

func (s *InstrumentedStore) Product(ctx context.Context, id string) (*domain.Product, error) {
	ctx, done := s.observe(ctx, "product", id)
	out, err := s.Store.Product(ctx, id)
	done(err)
	return out, err
}

func (s *InstrumentedStore) Order(ctx context.Context, id string) (*domain.Order, error) {
	ctx, done := s.observe(ctx, "order", id)
	out, err := s.Store.Order(ctx, id)
	done(err)
	return out, err
}

func (s *InstrumentedStore) CancelOrder(ctx context.Context, id string) (*domain.Order, error) {
	ctx, done := s.observe(ctx, "cancel", id)
	out, err := s.Store.CancelOrder(ctx, id)
	done(err)
	return out, err
}

func (s *InstrumentedStore) observe(ctx context.Context, op, id string) (context.Context, func(error)) {
	driver := s.Store.Driver()
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "store."+op,
			trace.WithAttributes(
				attribute.String("store.driver", driver),
				attribute.String("store.key", id),
			))
	}
	return ctx, func(err error) {
		status := "success"
		switch kind := domain.KindOf(err); kind {
		case "", domain.KindNotFound, domain.KindPolicyViolation:
		default:
			status = "error"
		}
		if span != nil {
			if status == "error" {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}
		if s.metrics != nil {
			s.metrics.StoreOperationsTotal.WithLabelValues(driver, op, status).Inc()
		}
		if status == "error" {
			s.anomaly.RecordError("store_" + op)
		} else {
			s.anomaly.RecordSuccess("store_" + op)
		}
	}
}

// --- Compile-time interface checks ---

var (
	_ llm.Provider  = (*InstrumentedProvider)(nil)
	_ storage.Store = (*InstrumentedStore)(nil)
)

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}
