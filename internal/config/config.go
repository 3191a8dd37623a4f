// Package config handles loading and validating Duka configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Duka.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.duka. Override: DUKA_DATA_DIR env var.
	Storage       StorageConfig        `json:"storage" yaml:"storage"`
	NLU           NLUConfig            `json:"nlu" yaml:"nlu"`
	Providers     ProvidersConfig      `json:"providers" yaml:"providers"`
	Policy        PolicyConfig         `json:"policy" yaml:"policy"`
	Clock         ClockConfig          `json:"clock" yaml:"clock"`
	Gateways      GatewaysConfig       `json:"gateways" yaml:"gateways"`
	Audit         AuditConfig          `json:"audit" yaml:"audit"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Housekeeping  *HousekeepingConfig  `json:"housekeeping,omitempty" yaml:"housekeeping,omitempty"`   // nil = no scheduled jobs
}

// StorageConfig selects and configures the order/product store.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "memory" (default), "sqlite", "postgres" or "badger".
	SeedDir  string                 `json:"seed_dir,omitempty" yaml:"seed_dir,omitempty"` // Directory with products.json/orders.json. Empty = embedded dataset.
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
	Badger   *BadgerStorageConfig   `json:"badger,omitempty" yaml:"badger,omitempty"`
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: <data_dir>/duka.db.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`                                 // Override: DUKA_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// BadgerStorageConfig holds Badger-specific settings.
type BadgerStorageConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"` // Empty = <data_dir>/badger. "memory" = in-memory.
}

// NLUConfig configures the classifier and the reply writer.
type NLUConfig struct {
	Provider   string `json:"provider" yaml:"provider"`       // "mock" (default), "openai", "ollama", "anthropic". Override: LLM_PROVIDER.
	Classifier string `json:"classifier" yaml:"classifier"`   // "rule" or "model". Default: "model" unless provider is mock.
	Writer     string `json:"writer" yaml:"writer"`           // "template" or "model". Default: "model" unless provider is mock.
	TimeoutMS  int    `json:"timeout_ms" yaml:"timeout_ms"`   // Per-call timeout. Default: 8000.
	MaxTokens  int    `json:"max_tokens" yaml:"max_tokens"`   // Reply token cap. Default: 400.
	RetryTries uint   `json:"retry_tries" yaml:"retry_tries"` // Provider attempts. Default: 2.
}

// Timeout returns the per-call timeout with a default of 8s.
func (n NLUConfig) Timeout() time.Duration {
	if n.TimeoutMS > 0 {
		return time.Duration(n.TimeoutMS) * time.Millisecond
	}
	return 8 * time.Second
}

// UsesModel reports whether any language-model backed component is enabled.
func (n NLUConfig) UsesModel() bool {
	return n.Classifier == "model" || n.Writer == "model"
}

type ProvidersConfig struct {
	Fallback  []string        `json:"fallback,omitempty" yaml:"fallback,omitempty"` // Fallback providers tried in order when the primary fails.
	OpenAI    OpenAIConfig    `json:"openai" yaml:"openai"`
	Ollama    OllamaConfig    `json:"ollama" yaml:"ollama"`
	Anthropic AnthropicConfig `json:"anthropic" yaml:"anthropic"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`       // Default: gpt-4o-mini. Override: OPENAI_MODEL.
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to https://api.openai.com/v1.
}

type OllamaConfig struct {
	Model   string `json:"model" yaml:"model"`       // Default: llama3.1:8b. Override: OLLAMA_MODEL.
	BaseURL string `json:"base_url" yaml:"base_url"` // Default: http://localhost:11434. Override: OLLAMA_HOST.
}

type AnthropicConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// PolicyConfig configures the cancellation policy.
type PolicyConfig struct {
	WindowMinutes int      `json:"window_minutes" yaml:"window_minutes"` // Default: 60
	Alternatives  []string `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
}

// Window returns the cancellation window with a default of 60 minutes.
func (p PolicyConfig) Window() time.Duration {
	if p.WindowMinutes > 0 {
		return time.Duration(p.WindowMinutes) * time.Minute
	}
	return 60 * time.Minute
}

// ClockConfig pins the reference time used when a request carries none.
type ClockConfig struct {
	CurrentTime string `json:"current_time,omitempty" yaml:"current_time,omitempty"` // RFC 3339. Empty = wall clock. Override: CURRENT_TIME.
}

// Fixed parses CurrentTime. ok is false when the wall clock should be used.
func (c ClockConfig) Fixed() (t time.Time, ok bool, err error) {
	if c.CurrentTime == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339, c.CurrentTime)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("clock.current_time: %w", err)
	}
	return t.UTC(), true, nil
}

// GatewaysConfig defines which gateways are enabled and their settings.
type GatewaysConfig struct {
	HTTP *HTTPGatewayConfig `json:"http,omitempty" yaml:"http,omitempty"`
	MCP  *MCPGatewayConfig  `json:"mcp,omitempty" yaml:"mcp,omitempty"`
}

// HTTPGatewayConfig configures the HTTP API gateway.
type HTTPGatewayConfig struct {
	Enabled             bool            `json:"enabled" yaml:"enabled"`
	EnableDocs          bool            `json:"enable_docs" yaml:"enable_docs"`
	ListenAddr          string          `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080". Override: DUKA_LISTEN_ADDR.
	MaxRequestSizeBytes int64           `json:"max_request_size_bytes" yaml:"max_request_size_bytes"`
	RateLimit           RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	// APIKeys maps bearer tokens to client names. Empty = no authentication.
	APIKeys map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"`
}

// MCPGatewayConfig configures the stdio MCP server.
type MCPGatewayConfig struct {
	Name string `json:"name" yaml:"name"` // Server name advertised to clients. Default: "duka".
}

// RateLimitConfig configures per-client rate limiting for a gateway.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// AuditConfig configures the cancellation audit log.
type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"` // Default: <data_dir>/audit.jsonl
}

// ObservabilityConfig configures metrics, tracing, health and anomaly detection.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "duka"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// AnomalyConfig configures threshold-based anomaly detection.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"` // e.g. 0.5 = 50% errors
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds"`             // Sliding window. Default: 300
}

// HousekeepingConfig schedules background maintenance jobs (cron expressions).
type HousekeepingConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	RateLimitPrune  string `json:"rate_limit_prune" yaml:"rate_limit_prune"`     // Default: "*/5 * * * *"
	BadgerGC        string `json:"badger_gc" yaml:"badger_gc"`                   // Default: "0 * * * *"
	AuditSync       string `json:"audit_sync" yaml:"audit_sync"`                 // Default: "* * * * *"
	IdleLimiterTTLS int    `json:"idle_limiter_ttl_s" yaml:"idle_limiter_ttl_s"` // Default: 600
}

// IdleLimiterTTL returns how long an unused rate limiter is kept. Default: 10m.
func (h *HousekeepingConfig) IdleLimiterTTL() time.Duration {
	if h != nil && h.IdleLimiterTTLS > 0 {
		return time.Duration(h.IdleLimiterTTLS) * time.Second
	}
	return 10 * time.Minute
}

// envOverrides lists the environment variables that take precedence over file values.
type envOverrides struct {
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIModel     string `env:"OPENAI_MODEL"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL"`
	OllamaModel     string `env:"OLLAMA_MODEL"`
	OllamaHost      string `env:"OLLAMA_HOST"`
	LLMProvider     string `env:"LLM_PROVIDER"`
	CurrentTime     string `env:"CURRENT_TIME"`
	DataDir         string `env:"DUKA_DATA_DIR"`
	StorageDriver   string `env:"DUKA_STORAGE_DRIVER"`
	DBDSN           string `env:"DUKA_DB_DSN"`
	SeedDir         string `env:"DUKA_SEED_DIR"`
	ListenAddr      string `env:"DUKA_LISTEN_ADDR"`
}

// DefaultConfigPath returns the default config file path (~/.duka/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/duka.yaml"
	}
	return filepath.Join(home, ".duka", "config.yaml")
}

// Default returns a configuration that runs fully offline: memory store,
// rule-based classifier and template writer.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Driver: "memory"},
		NLU:     NLUConfig{Provider: "mock"},
		Gateways: GatewaysConfig{
			HTTP: &HTTPGatewayConfig{Enabled: true, ListenAddr: ":8080"},
		},
	}
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// An empty path, or a missing file at the default path, yields Default().
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		resolved, err := resolvePath(path)
		if err != nil {
			return nil, fmt.Errorf("resolving config path %s: %w", path, err)
		}
		data, err := os.ReadFile(resolved)
		switch {
		case err == nil:
			if err := decode(resolved, data, cfg); err != nil {
				return nil, err
			}
		case os.IsNotExist(err) && path == DefaultConfigPath():
			// No config file yet; run on defaults.
		default:
			return nil, fmt.Errorf("reading config %s: %w", resolved, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing JSON config %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	var e envOverrides
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Providers.OpenAI.APIKey, e.OpenAIAPIKey)
	set(&c.Providers.OpenAI.Model, e.OpenAIModel)
	set(&c.Providers.Anthropic.APIKey, e.AnthropicAPIKey)
	set(&c.Providers.Anthropic.Model, e.AnthropicModel)
	set(&c.Providers.Ollama.Model, e.OllamaModel)
	set(&c.Providers.Ollama.BaseURL, e.OllamaHost)
	set(&c.NLU.Provider, e.LLMProvider)
	set(&c.Clock.CurrentTime, e.CurrentTime)
	set(&c.DataDir, e.DataDir)
	set(&c.Storage.Driver, e.StorageDriver)
	set(&c.Storage.SeedDir, e.SeedDir)

	if e.DBDSN != "" {
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = e.DBDSN
	}
	if e.ListenAddr != "" {
		if c.Gateways.HTTP == nil {
			c.Gateways.HTTP = &HTTPGatewayConfig{Enabled: true}
		}
		c.Gateways.HTTP.ListenAddr = e.ListenAddr
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, ".duka")
		} else {
			c.DataDir = "data"
		}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	c.NLU.Provider = strings.ToLower(strings.TrimSpace(c.NLU.Provider))
	if c.NLU.Provider == "" {
		c.NLU.Provider = "mock"
	}
	strategy := "model"
	if c.NLU.Provider == "mock" {
		strategy = ""
	}
	if c.NLU.Classifier == "" {
		c.NLU.Classifier = orDefault(strategy, "rule")
	}
	if c.NLU.Writer == "" {
		c.NLU.Writer = orDefault(strategy, "template")
	}
	if c.NLU.MaxTokens <= 0 {
		c.NLU.MaxTokens = 400
	}
	if c.NLU.RetryTries == 0 {
		c.NLU.RetryTries = 2
	}
	if c.Gateways.HTTP != nil && c.Gateways.HTTP.ListenAddr == "" {
		c.Gateways.HTTP.ListenAddr = ":8080"
	}
	if h := c.Housekeeping; h != nil {
		h.RateLimitPrune = orDefault(h.RateLimitPrune, "*/5 * * * *")
		h.BadgerGC = orDefault(h.BadgerGC, "0 * * * *")
		h.AuditSync = orDefault(h.AuditSync, "* * * * *")
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// SQLitePath returns the SQLite database path, defaulting to <data_dir>/duka.db.
func (c *Config) SQLitePath() string {
	if c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.DataDir, "duka.db")
}

// BadgerDir returns the Badger directory. Empty means in-memory.
func (c *Config) BadgerDir() string {
	if c.Storage.Badger != nil {
		if c.Storage.Badger.Dir == "memory" {
			return ""
		}
		if c.Storage.Badger.Dir != "" {
			return c.Storage.Badger.Dir
		}
	}
	return filepath.Join(c.DataDir, "badger")
}

// AuditLogPath returns the audit log path, defaulting to <data_dir>/audit.jsonl.
func (c *Config) AuditLogPath() string {
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(c.DataDir, "audit.jsonl")
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "badger":
	case "postgres":
		if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required (set DUKA_DB_DSN env var)")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported (use memory, sqlite, postgres or badger)", c.Storage.Driver)
	}

	switch c.NLU.Classifier {
	case "rule", "model":
	default:
		return fmt.Errorf("nlu.classifier %q is not supported (use rule or model)", c.NLU.Classifier)
	}
	switch c.NLU.Writer {
	case "template", "model":
	default:
		return fmt.Errorf("nlu.writer %q is not supported (use template or model)", c.NLU.Writer)
	}
	if c.NLU.Provider == "mock" && c.NLU.UsesModel() {
		return fmt.Errorf("nlu: provider mock cannot back a model classifier or writer")
	}
	if err := c.validateProvider(c.NLU.Provider); err != nil {
		return err
	}
	for _, name := range c.Providers.Fallback {
		if name == "mock" {
			return fmt.Errorf("providers.fallback cannot contain mock")
		}
		if err := c.validateProvider(name); err != nil {
			return fmt.Errorf("providers.fallback: %w", err)
		}
	}

	if c.Policy.WindowMinutes < 0 {
		return fmt.Errorf("policy.window_minutes must not be negative")
	}
	if _, _, err := c.Clock.Fixed(); err != nil {
		return err
	}
	if h := c.Gateways.HTTP; h != nil && h.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("gateways.http.rate_limit.requests_per_minute must not be negative")
	}
	return nil
}

// validateProvider checks that the selected LLM provider has the required fields.
func (c *Config) validateProvider(name string) error {
	switch name {
	case "mock", "ollama":
	case "openai":
		if c.Providers.OpenAI.APIKey == "" {
			return fmt.Errorf("providers.openai.api_key is required (set OPENAI_API_KEY env var)")
		}
	case "anthropic":
		if c.Providers.Anthropic.APIKey == "" {
			return fmt.Errorf("providers.anthropic.api_key is required (set ANTHROPIC_API_KEY env var)")
		}
	default:
		return fmt.Errorf("provider %q is not supported (use mock, openai, ollama or anthropic)", name)
	}
	return nil
}
