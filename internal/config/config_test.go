package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every override so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "OPENAI_MODEL", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
		"OLLAMA_MODEL", "OLLAMA_HOST", "LLM_PROVIDER", "CURRENT_TIME",
		"DUKA_DATA_DIR", "DUKA_STORAGE_DRIVER", "DUKA_DB_DSN", "DUKA_SEED_DIR", "DUKA_LISTEN_ADDR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.NLU.Provider != "mock" || cfg.NLU.Classifier != "rule" || cfg.NLU.Writer != "template" {
		t.Errorf("nlu = %+v", cfg.NLU)
	}
	if cfg.Policy.Window() != 60*time.Minute {
		t.Errorf("window = %v", cfg.Policy.Window())
	}
	if cfg.Gateways.HTTP == nil || cfg.Gateways.HTTP.ListenAddr != ":8080" {
		t.Errorf("http gateway = %+v", cfg.Gateways.HTTP)
	}
	if _, ok, _ := cfg.Clock.Fixed(); ok {
		t.Error("expected wall clock by default")
	}
}

func TestLoad_YAMLWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "duka.yaml")
	yml := `
data_dir: ` + dir + `
storage:
  driver: sqlite
nlu:
  provider: ollama
  timeout_ms: 1500
policy:
  window_minutes: 30
housekeeping:
  enabled: true
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OLLAMA_MODEL", "qwen2.5:7b")
	t.Setenv("CURRENT_TIME", "2025-09-08T11:05:00Z")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NLU.Classifier != "model" || cfg.NLU.Writer != "model" {
		t.Errorf("expected model strategies for a real provider, got %+v", cfg.NLU)
	}
	if cfg.NLU.Timeout() != 1500*time.Millisecond {
		t.Errorf("timeout = %v", cfg.NLU.Timeout())
	}
	if cfg.Providers.Ollama.Model != "qwen2.5:7b" {
		t.Errorf("ollama model = %q", cfg.Providers.Ollama.Model)
	}
	if cfg.Policy.Window() != 30*time.Minute {
		t.Errorf("window = %v", cfg.Policy.Window())
	}
	now, ok, err := cfg.Clock.Fixed()
	if err != nil || !ok || !now.Equal(time.Date(2025, 9, 8, 11, 5, 0, 0, time.UTC)) {
		t.Errorf("clock = %v %v %v", now, ok, err)
	}
	if cfg.SQLitePath() != filepath.Join(dir, "duka.db") {
		t.Errorf("sqlite path = %q", cfg.SQLitePath())
	}
	if cfg.Housekeeping.BadgerGC != "0 * * * *" {
		t.Errorf("badger gc schedule = %q", cfg.Housekeeping.BadgerGC)
	}
}

func TestLoad_JSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "duka.json")
	if err := os.WriteFile(path, []byte(`{"storage":{"driver":"badger","badger":{"dir":"memory"}}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "badger" || cfg.BadgerDir() != "" {
		t.Errorf("driver=%q dir=%q", cfg.Storage.Driver, cfg.BadgerDir())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"DUKA_STORAGE_DRIVER": "mongo"}, "storage.driver"},
		{"postgres without dsn", map[string]string{"DUKA_STORAGE_DRIVER": "postgres"}, "dsn"},
		{"openai without key", map[string]string{"LLM_PROVIDER": "openai"}, "OPENAI_API_KEY"},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "gemini"}, "not supported"},
		{"bad clock", map[string]string{"CURRENT_TIME": "yesterday"}, "current_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
