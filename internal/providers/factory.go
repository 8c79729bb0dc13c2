package providers

import (
	"fmt"
	"time"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// Params are the raw values needed to construct any schema.LLMProvider.
// Extracted from config.Config by the caller to avoid an import cycle.
type Params struct {
	ProviderName string // registry name, e.g. "ollama", "openrouter"
	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string
	DefaultModel string
	// Timeout bounds a whole streaming request. Zero means no limit.
	Timeout time.Duration
}

// New creates the schema.LLMProvider matching p.ProviderName.
func New(p Params) (schema.LLMProvider, error) {
	spec := FindByName(p.ProviderName)
	if spec == nil {
		return nil, fmt.Errorf("unknown provider %q", p.ProviderName)
	}
	if spec.NeedsAPIKey && p.APIKey == "" {
		return nil, fmt.Errorf("provider %q requires an API key", spec.Name)
	}
	base := p.APIBase
	if base == "" {
		base = spec.DefaultAPIBase
	}

	switch spec.Wire {
	case WireOllama:
		prov := NewOllamaProvider(base, p.DefaultModel, p.ExtraHeaders)
		prov.httpClient.Timeout = p.Timeout
		return prov, nil
	default:
		prov := NewOpenAIProvider(p.APIKey, base, p.DefaultModel, p.ExtraHeaders)
		prov.httpClient.Timeout = p.Timeout
		return prov, nil
	}
}
