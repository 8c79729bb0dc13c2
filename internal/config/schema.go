// Package config defines the configuration schema for toolstream.
//
// JSON keys use camelCase. YAML files use the same keys.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// ServerConfig holds the chat backend listen address.
type ServerConfig struct {
	Host        string   `json:"host" yaml:"host"`
	Port        int      `json:"port" yaml:"port"`
	CORSOrigins []string `json:"corsOrigins" yaml:"corsOrigins"` // empty disables CORS
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{Host: "0.0.0.0", Port: 8000, CORSOrigins: []string{"*"}}
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LLMConfig selects and configures the model service.
type LLMConfig struct {
	Provider     string            `json:"provider" yaml:"provider"`
	APIBase      string            `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey       string            `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model        string            `json:"model" yaml:"model"`
	Temperature  float64           `json:"temperature" yaml:"temperature"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty" yaml:"extraHeaders,omitempty"`

	FirstFragmentTimeout int `json:"firstFragmentTimeout" yaml:"firstFragmentTimeout"` // seconds
	// RequestTimeout caps a whole model request, stream included, in seconds.
	// Zero, the default, leaves streams unbounded once the first fragment arrived.
	RequestTimeout int `json:"requestTimeout" yaml:"requestTimeout"`
}

func defaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:             "ollama",
		Model:                "llama3.1:8b",
		Temperature:          0.7,
		FirstFragmentTimeout: 60,
	}
}

// DispatchConfig configures both ends of the tool dispatch protocol: the
// server's listen address and the URL the chat backend dials.
type DispatchConfig struct {
	URL           string `json:"url" yaml:"url"`
	Host          string `json:"host" yaml:"host"`
	Port          int    `json:"port" yaml:"port"`
	CallTimeout   int    `json:"callTimeout" yaml:"callTimeout"` // seconds
	PoolSize      int    `json:"poolSize" yaml:"poolSize"`
	ServerName    string `json:"serverName" yaml:"serverName"`
	ServerVersion string `json:"serverVersion" yaml:"serverVersion"`
}

func defaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		URL:           "ws://localhost:5002/mcp",
		Host:          "0.0.0.0",
		Port:          5002,
		CallTimeout:   30,
		PoolSize:      4,
		ServerName:    "websocket-mcp-server",
		ServerVersion: "0.1.0",
	}
}

// Addr returns host:port.
func (d DispatchConfig) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// FetchToolConfig configures http_fetch.
type FetchToolConfig struct {
	UserAgent string `json:"userAgent" yaml:"userAgent"`
	Timeout   int    `json:"timeout" yaml:"timeout"` // seconds
	MaxBytes  int64  `json:"maxBytes" yaml:"maxBytes"`
}

func defaultFetchToolConfig() FetchToolConfig {
	return FetchToolConfig{
		UserAgent: "MCP-HTTP-Fetch/1.0 (+https://example.com)",
		Timeout:   10,
		MaxBytes:  5 << 20,
	}
}

// SearchToolConfig configures duckduckgo_full_search.
type SearchToolConfig struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AnswersEndpoint string `json:"answersEndpoint" yaml:"answersEndpoint"`
	MaxResults      int    `json:"maxResults" yaml:"maxResults"`
	Timeout         int    `json:"timeout" yaml:"timeout"` // seconds
}

func defaultSearchToolConfig() SearchToolConfig {
	return SearchToolConfig{
		Endpoint:        "https://html.duckduckgo.com/html/",
		AnswersEndpoint: "https://api.duckduckgo.com/",
		MaxResults:      5,
		Timeout:         10,
	}
}

// ToolsConfig groups tool settings for the dispatch server.
type ToolsConfig struct {
	Fetch  FetchToolConfig  `json:"fetch" yaml:"fetch"`
	Search SearchToolConfig `json:"search" yaml:"search"`
	// Disabled names tools to leave out of the registry.
	Disabled []string `json:"disabled" yaml:"disabled"`
}

func defaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		Fetch:    defaultFetchToolConfig(),
		Search:   defaultSearchToolConfig(),
		Disabled: []string{},
	}
}

// SessionsConfig bounds in-memory conversation state.
type SessionsConfig struct {
	MaxSessions int `json:"maxSessions" yaml:"maxSessions"`
	MaxMessages int `json:"maxMessages" yaml:"maxMessages"` // 0 = unlimited
}

func defaultSessionsConfig() SessionsConfig {
	return SessionsConfig{MaxSessions: 10000, MaxMessages: 200}
}

// AgentConfig configures the chat turn.
type AgentConfig struct {
	SystemPrompt   string `json:"systemPrompt" yaml:"systemPrompt"`
	AdvertiseTools bool   `json:"advertiseTools" yaml:"advertiseTools"`
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{AdvertiseTools: true}
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	// MaxSizeMB rotates the file at path once it reaches this size.
	MaxSizeMB int `json:"maxSizeMB" yaml:"maxSizeMB"`
	// MaxBackups is the number of rotated files kept. Zero keeps all of them.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`
}

func defaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text", MaxSizeMB: 10, MaxBackups: 7}
}

// ---- Root config -----------------------------------------------------------

// Config is the root configuration object, loaded from ~/.toolstream/config.json.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Tools    ToolsConfig    `json:"tools" yaml:"tools"`
	Sessions SessionsConfig `json:"sessions" yaml:"sessions"`
	Agent    AgentConfig    `json:"agent" yaml:"agent"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Server:   defaultServerConfig(),
		LLM:      defaultLLMConfig(),
		Dispatch: defaultDispatchConfig(),
		Tools:    defaultToolsConfig(),
		Sessions: defaultSessionsConfig(),
		Agent:    defaultAgentConfig(),
		Log:      defaultLogConfig(),
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.LLM.Provider == "":
		return fmt.Errorf("llm.provider must be set")
	case c.LLM.FirstFragmentTimeout < 0:
		return fmt.Errorf("llm.firstFragmentTimeout must not be negative")
	case c.LLM.RequestTimeout < 0:
		return fmt.Errorf("llm.requestTimeout must not be negative")
	case c.Dispatch.CallTimeout <= 0:
		return fmt.Errorf("dispatch.callTimeout must be positive")
	case c.Dispatch.PoolSize <= 0:
		return fmt.Errorf("dispatch.poolSize must be positive")
	case c.Sessions.MaxSessions <= 0:
		return fmt.Errorf("sessions.maxSessions must be positive")
	case c.Sessions.MaxMessages < 0:
		return fmt.Errorf("sessions.maxMessages must not be negative")
	case c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0:
		return fmt.Errorf("log.maxSizeMB and log.maxBackups must not be negative")
	case c.Tools.Fetch.Timeout <= 0 || c.Tools.Search.Timeout <= 0:
		return fmt.Errorf("tool timeouts must be positive")
	}
	return nil
}

// Seconds converts a seconds setting to a Duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ToolEnabled reports whether name is not listed in tools.disabled.
func (c *Config) ToolEnabled(name string) bool {
	for _, d := range c.Tools.Disabled {
		if d == name {
			return false
		}
	}
	return true
}
