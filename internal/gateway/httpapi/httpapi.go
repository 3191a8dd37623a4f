// Package httpapi implements the HTTP API gateway for Duka.
//
// Security:
//   - Optional API key authentication (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-client rate limiting via token bucket
//   - All requests logged with request IDs; customer emails are never logged
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/duka/internal/domain"
	"github.com/jkaninda/duka/internal/observability"
	"github.com/jkaninda/duka/internal/pipeline"
	"github.com/jkaninda/duka/internal/ratelimit"
	"github.com/jkaninda/duka/internal/tools/catalog"
	"github.com/jkaninda/okapi"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Assistant runs one request through the pipeline.
type Assistant interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string            // e.g., ":8080"
	EnableDocs     bool              // Serve OpenAPI docs.
	APIKeys        map[string]string // API key → client name. Empty disables authentication.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config    Config
	assistant Assistant
	catalog   catalog.Catalog
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	validate  *validator.Validate
	server    *http.Server

	routesOnce sync.Once
	okapi      *okapi.Okapi
	group      *okapi.Group
}

// NewGateway creates an HTTP API gateway. rl may be nil to disable rate
// limiting.
func NewGateway(cfg Config, a Assistant, c catalog.Catalog, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:    cfg,
		assistant: a,
		catalog:   c,
		limiter:   rl,
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		okapi:     okapi.New(okapi.WithMaxMultipartMemory(cfg.MaxRequestSize)),
	}
}

// WithOpenAPIDocs enables the generated OpenAPI documentation.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Duka",
			Version: "v1",
		},
	)
	return g
}

// Handler registers the routes on first use and returns the HTTP handler.
func (g *Gateway) Handler() http.Handler {
	g.routesOnce.Do(g.registerRoutes)
	return g.okapi
}

func (g *Gateway) registerRoutes() {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.Use(observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer))
	}
	g.okapi.Use(g.limitBody)

	g.group = g.okapi.Group("/v1", g.authenticate)

	g.group.Post("/assist", g.handleAssist,
		okapi.DocSummary("Run a message through the assistant pipeline"),
		okapi.DocTags("Assistant"),
		okapi.DocRequestBody(AssistRequest{}),
		okapi.DocResponse(AssistResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	g.group.Post("/assist/stream", g.handleAssistStream,
		okapi.DocSummary("Run a message and stream the stage results via SSE"),
		okapi.DocTags("Assistant"),
		okapi.DocRequestBody(AssistRequest{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	g.group.Get("/products", g.handleProductList,
		okapi.DocSummary("List catalog products"),
		okapi.DocTags("Catalog"),
		okapi.DocResponse([]ProductResponse{}),
		okapi.DocResponse(http.StatusServiceUnavailable, ErrorBody{}),
	)
	g.group.Get("/products/{id}", g.handleProductGet,
		okapi.DocSummary("Get a catalog product"),
		okapi.DocTags("Catalog"),
		okapi.DocPathParam("id", "string", "Product ID, e.g. P2"),
		okapi.DocResponse(ProductResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	g.Handler()

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	err := g.okapi.StartServer(g.server)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server, ctx)
}

// --- Handlers ---

// AssistRequest is the JSON body for POST /v1/assist.
type AssistRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
	// Now overrides the reference time used by the cancellation window.
	Now       *time.Time `json:"now,omitempty"`
	RequestID string     `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

// AssistResponse is the JSON response for POST /v1/assist.
type AssistResponse struct {
	RequestID string                `json:"request_id"`
	Reply     string                `json:"reply"`
	Trace     pipeline.Trace        `json:"trace"`
	Errors    []pipeline.StageError `json:"errors,omitempty"`
}

func (g *Gateway) handleAssist(c *okapi.Context) error {
	req, abort := g.bindAssist(c)
	if abort != nil {
		return abort()
	}

	res := g.assistant.Run(c.Context(), req)
	g.logger.Info("http assist",
		slog.String("client", c.GetString("clientID")),
		slog.String("request_id", res.RequestID),
		slog.String("intent", string(res.Trace.Intent)),
		slog.Int("errors", len(res.Errors)),
	)
	return c.OK(AssistResponse{
		RequestID: res.RequestID,
		Reply:     res.Trace.FinalMessage,
		Trace:     res.Trace,
		Errors:    res.Errors,
	})
}

// bindAssist applies rate limiting, decodes and validates the body. A
// non-nil abort writes the error response.
func (g *Gateway) bindAssist(c *okapi.Context) (pipeline.Request, func() error) {
	clientID := c.GetString("clientID")
	if g.limiter != nil {
		if err := g.limiter.Allow(clientID); err != nil {
			if g.config.Metrics != nil {
				g.config.Metrics.RateLimitedTotal.Inc()
			}
			return pipeline.Request{}, func() error { return c.AbortTooManyRequests("rate limit exceeded") }
		}
	}

	var body AssistRequest
	if err := c.BindJSON(&body); err != nil {
		return pipeline.Request{}, func() error { return c.AbortBadRequest("invalid request body") }
	}
	body.Message = strings.TrimSpace(body.Message)
	if err := g.validate.Struct(body); err != nil {
		return pipeline.Request{}, func() error { return c.AbortBadRequest(validationMessage(err)) }
	}

	req := pipeline.Request{ID: body.RequestID, Message: body.Message}
	if req.ID == "" {
		req.ID = newCorrelationID()
	}
	if body.Now != nil {
		req.Now = body.Now.UTC()
	}
	return req, nil
}

// ProductResponse is a catalog entry.
type ProductResponse struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Price float64  `json:"price"`
	Sizes []string `json:"sizes"`
	Tags  []string `json:"tags"`
	Color string   `json:"color,omitempty"`
}

func productResponse(p *domain.Product) ProductResponse {
	return ProductResponse{ID: p.ID, Title: p.Title, Price: p.Price, Sizes: p.Sizes, Tags: p.Tags, Color: p.Color}
}

func (g *Gateway) handleProductList(c *okapi.Context) error {
	products, err := g.catalog.Products(c.Context())
	if err != nil {
		g.logger.Error("listing products failed", slog.String("error", err.Error()))
		return c.AbortServiceUnavailable("catalog unavailable")
	}
	tag := strings.TrimSpace(c.Query("tag"))
	out := make([]ProductResponse, 0, len(products))
	for i := range products {
		if tag != "" && !products[i].HasTag(tag) {
			continue
		}
		out = append(out, productResponse(&products[i]))
	}
	return c.OK(out)
}

func (g *Gateway) handleProductGet(c *okapi.Context) error {
	p, err := g.catalog.Product(c.Context(), c.Param("id"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.AbortNotFound("product not found")
	case err != nil:
		g.logger.Error("product lookup failed", slog.String("error", err.Error()))
		return c.AbortServiceUnavailable("catalog unavailable")
	}
	return c.OK(productResponse(p))
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleLiveness is the Kubernetes liveness probe
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Middleware ---

// authenticate resolves the client identity. With no API keys configured
// the client is identified by its address.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if len(g.config.APIKeys) == 0 {
			c.Set("clientID", c.RealIP())
			return next(c)
		}

		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		clientID := ""
		for key, name := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				clientID = name
			}
		}
		if clientID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("clientID", clientID)
		return next(c)
	}
}

func (g *Gateway) limitBody(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		r := c.Request()
		if r.Body != nil {
			r.Body = http.MaxBytesReader(c.Response(), r.Body, g.config.MaxRequestSize)
		}
		return next(c)
	}
}

// --- Helpers ---

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " is too long"
	}
	return field + " is invalid"
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
