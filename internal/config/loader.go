package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the loaded file.
const (
	EnvLLMAPIKey   = "TOOLSTREAM_LLM_API_KEY"
	EnvLLMAPIBase  = "TOOLSTREAM_LLM_API_BASE"
	EnvDispatchURL = "TOOLSTREAM_DISPATCH_URL"
)

// ConfigPath returns the default configuration file path: ~/.toolstream/config.json.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// DataDir returns the toolstream data directory: ~/.toolstream.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolstream"
	}
	return filepath.Join(home, ".toolstream")
}

// Load reads and parses the config file at path, then applies environment
// overrides. If path is empty, ConfigPath() is used. Files ending in .yaml
// or .yml are read as YAML, anything else as JSON.
// On parse failure it prints a warning and returns DefaultConfig().
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := decode(path, data, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse config %s: %v\n", path, err)
			fmt.Fprintln(os.Stderr, "Using default configuration.")
			cfg = DefaultConfig()
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

// Save writes cfg to path as indented JSON, or YAML for .yaml/.yml paths.
// If path is empty, ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		// Append a trailing newline for POSIX compliance.
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv(EnvLLMAPIBase); v != "" {
		cfg.LLM.APIBase = v
	}
	if v := os.Getenv(EnvDispatchURL); v != "" {
		cfg.Dispatch.URL = v
	}
}
