// Package tools defines the tool interface and registry for Duka.
// Each commerce operation the pipeline can invoke is a Tool, which lets the
// same implementations be exposed over MCP.
package tools

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jkaninda/duka/internal/domain"
)

// Tool names.
const (
	ProductSearch   = "product_search"
	SizeRecommender = "size_recommender"
	ETA             = "eta"
	OrderLookup     = "order_lookup"
	OrderCancel     = "order_cancel"
)

// Tool is the interface all Duka tools must implement.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "product_search").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// InputSchema returns a JSON Schema object describing the tool's parameters.
	InputSchema() map[string]any

	// Validate checks that params are well-formed before execution. Errors
	// wrap domain.ErrInvalidInput.
	Validate(params map[string]any) error

	// Execute runs the tool. Business failures (not found, unauthorized)
	// are returned as errors wrapping the domain sentinels.
	Execute(ctx context.Context, params map[string]any) (*Result, error)
}

// Result is the outcome of a tool execution.
type Result struct {
	Output   string         `json:"output"`
	Data     any            `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Success  bool           `json:"success"`
}

// Registry holds available tools keyed by name.
// Thread-safe for concurrent reads; writes should only happen at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on duplicate names (startup config error, not runtime).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(names))
	for _, name := range names {
		result = append(result, r.tools[name])
	}
	return result
}

// Run validates params and executes the named tool.
func (r *Registry) Run(ctx context.Context, name string, params map[string]any) (*Result, error) {
	t := r.Get(name)
	if t == nil {
		return nil, fmt.Errorf("unknown tool %q: %w", name, domain.ErrInvalidInput)
	}
	if err := t.Validate(params); err != nil {
		return nil, err
	}
	return t.Execute(ctx, params)
}

// --- parameter helpers ---

// InvalidParam returns an error wrapping domain.ErrInvalidInput.
func InvalidParam(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrInvalidInput)
}

// StringParam returns params[key] as a string.
func StringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok && v != ""
}

// FloatParam returns params[key] as a float64, accepting any numeric type.
func FloatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// StringsParam returns params[key] as a string slice. JSON arrays decode as
// []any, so both forms are accepted.
func StringsParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// TimeParam returns params[key] as a time, accepting time.Time or RFC 3339
// strings.
func TimeParam(params map[string]any, key string) (time.Time, bool, error) {
	switch v := params[key].(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return v.UTC(), true, nil
	case string:
		if v == "" {
			return time.Time{}, false, nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false, InvalidParam("%s must be an RFC 3339 timestamp", key)
		}
		return t.UTC(), true, nil
	}
	return time.Time{}, false, InvalidParam("%s has unsupported type %T", key, params[key])
}
