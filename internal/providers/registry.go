package providers

import "strings"

// Wire formats understood by the factory.
const (
	WireOllama = "ollama"
	WireOpenAI = "openai"
)

// ProviderSpec is the metadata record for one model service.
type ProviderSpec struct {
	Name           string // config value, e.g. "ollama"
	DisplayName    string // shown in `toolstream status`
	Wire           string // WireOllama or WireOpenAI
	DefaultAPIBase string // used when no apiBase is configured
	NeedsAPIKey    bool
	IsLocal        bool
}

// Label returns the display name, defaulting to Title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToTitle(s.Name[:1]) + s.Name[1:]
}

// PROVIDERS lists the supported services.
var PROVIDERS = []ProviderSpec{
	{
		Name:           "ollama",
		DisplayName:    "Ollama",
		Wire:           WireOllama,
		DefaultAPIBase: "http://localhost:11434",
		IsLocal:        true,
	},
	{
		Name:           "openai",
		DisplayName:    "OpenAI",
		Wire:           WireOpenAI,
		DefaultAPIBase: "https://api.openai.com/v1",
		NeedsAPIKey:    true,
	},
	{
		Name:           "openrouter",
		DisplayName:    "OpenRouter",
		Wire:           WireOpenAI,
		DefaultAPIBase: "https://openrouter.ai/api/v1",
		NeedsAPIKey:    true,
	},
	{
		Name:           "groq",
		DisplayName:    "Groq",
		Wire:           WireOpenAI,
		DefaultAPIBase: "https://api.groq.com/openai/v1",
		NeedsAPIKey:    true,
	},
	{
		Name:           "vllm",
		DisplayName:    "vLLM",
		Wire:           WireOpenAI,
		DefaultAPIBase: "http://localhost:8000/v1",
		IsLocal:        true,
	},
}

// FindByName returns the spec for name, or nil.
func FindByName(name string) *ProviderSpec {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range PROVIDERS {
		if PROVIDERS[i].Name == name {
			return &PROVIDERS[i]
		}
	}
	return nil
}
