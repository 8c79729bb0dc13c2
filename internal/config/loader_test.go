package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.LLM.Model != def.LLM.Model {
		t.Errorf("expected default model %q, got %q", def.LLM.Model, cfg.LLM.Model)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"llm": map[string]any{
			"provider": "openai",
			"model":    "gpt-4o-mini",
		},
		"dispatch": map[string]any{
			"poolSize": 8,
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider %q, got %q", "openai", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("expected model %q, got %q", "gpt-4o-mini", cfg.LLM.Model)
	}
	if cfg.Dispatch.PoolSize != 8 {
		t.Errorf("expected poolSize 8, got %d", cfg.Dispatch.PoolSize)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := "llm:\n  model: qwen2.5:7b\n  temperature: 0.2\nsessions:\n  maxSessions: 50\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Model != "qwen2.5:7b" {
		t.Errorf("expected model %q, got %q", "qwen2.5:7b", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", cfg.LLM.Temperature)
	}
	if cfg.Sessions.MaxSessions != 50 {
		t.Errorf("expected maxSessions 50, got %d", cfg.Sessions.MaxSessions)
	}
	if cfg.LLM.Provider != DefaultConfig().LLM.Provider {
		t.Errorf("expected default provider, got %q", cfg.LLM.Provider)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid JSON (falls back to default), got: %v", err)
	}
	def := DefaultConfig()
	if cfg.LLM.Model != def.LLM.Model {
		t.Errorf("expected default model %q, got %q", def.LLM.Model, cfg.LLM.Model)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvLLMAPIKey, "sk-env")
	t.Setenv(EnvLLMAPIBase, "http://llm.internal:11434")
	t.Setenv(EnvDispatchURL, "ws://tools.internal:5002/mcp")

	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"llm": map[string]any{"apiKey": "sk-file"},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "sk-env" {
		t.Errorf("expected env api key, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.APIBase != "http://llm.internal:11434" {
		t.Errorf("expected env api base, got %q", cfg.LLM.APIBase)
	}
	if cfg.Dispatch.URL != "ws://tools.internal:5002/mcp" {
		t.Errorf("expected env dispatch url, got %q", cfg.Dispatch.URL)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			original := DefaultConfig()
			original.LLM.Model = "mistral:7b"
			original.Sessions.MaxMessages = 42
			original.Tools.Disabled = []string{"http_fetch"}

			if err := Save(&original, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.LLM.Model != original.LLM.Model {
				t.Errorf("model mismatch: got %q, want %q", loaded.LLM.Model, original.LLM.Model)
			}
			if loaded.Sessions.MaxMessages != 42 {
				t.Errorf("maxMessages mismatch: got %d, want 42", loaded.Sessions.MaxMessages)
			}
			if loaded.ToolEnabled("http_fetch") {
				t.Errorf("expected http_fetch to be disabled")
			}
		})
	}
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dir", "config.json")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestLoad_PartialConfig_UsesDefaults(t *testing.T) {
	dir := t.TempDir()
	// Only set one field; the rest should come from DefaultConfig.
	path := writeConfig(t, dir, map[string]any{
		"llm": map[string]any{
			"model": "custom/model",
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()
	if cfg.LLM.Model != "custom/model" {
		t.Errorf("expected model %q, got %q", "custom/model", cfg.LLM.Model)
	}
	// Unset fields should retain their defaults.
	if cfg.LLM.Temperature != def.LLM.Temperature {
		t.Errorf("expected default temperature %v, got %v", def.LLM.Temperature, cfg.LLM.Temperature)
	}
	if cfg.Dispatch.CallTimeout != def.Dispatch.CallTimeout {
		t.Errorf("expected default callTimeout %d, got %d", def.Dispatch.CallTimeout, cfg.Dispatch.CallTimeout)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	bad := []func(*Config){
		func(c *Config) { c.LLM.Provider = "" },
		func(c *Config) { c.Dispatch.PoolSize = 0 },
		func(c *Config) { c.Dispatch.CallTimeout = -1 },
		func(c *Config) { c.Sessions.MaxSessions = 0 },
		func(c *Config) { c.LLM.FirstFragmentTimeout = -5 },
		func(c *Config) { c.Tools.Fetch.Timeout = 0 },
		func(c *Config) { c.Log.MaxBackups = -1 },
	}
	for i, mutate := range bad {
		c := DefaultConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestAddr(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Server.Addr(); got != "0.0.0.0:8000" {
		t.Errorf("server addr = %q", got)
	}
	if got := cfg.Dispatch.Addr(); got != "0.0.0.0:5002" {
		t.Errorf("dispatch addr = %q", got)
	}
}

func TestDefaultConfig_StreamsHaveNoOverallDeadline(t *testing.T) {
	def := DefaultConfig()
	if def.LLM.RequestTimeout != 0 {
		t.Errorf("expected requestTimeout 0 (unbounded), got %d", def.LLM.RequestTimeout)
	}
	if def.LLM.FirstFragmentTimeout <= 0 {
		t.Errorf("expected a positive firstFragmentTimeout, got %d", def.LLM.FirstFragmentTimeout)
	}
}
