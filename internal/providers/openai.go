package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// OpenAIProvider streams from any OpenAI-compatible /chat/completions
// endpoint.
type OpenAIProvider struct {
	apiKey       string
	apiBase      string
	defaultModel string
	extraHeaders map[string]string
	httpClient   *http.Client
}

// NewOpenAIProvider constructs a provider from raw config values.
// The caller extracts these from config.Config to avoid an import cycle.
func NewOpenAIProvider(apiKey, apiBase, defaultModel string, extraHeaders map[string]string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		extraHeaders: extraHeaders,
		httpClient:   &http.Client{},
	}
}

func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

// Stream implements schema.LLMProvider.
func (p *OpenAIProvider) Stream(ctx context.Context, messages schema.Messages, opts schema.StreamOptions) (schema.TextStream, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	body := map[string]any{
		"model":       model,
		"messages":    toWire(messages),
		"temperature": opts.Temperature,
		"stream":      true,
	}

	headers := map[string]string{"Accept": "text/event-stream"}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	for k, v := range p.extraHeaders {
		headers[k] = v
	}

	resp, err := postStream(ctx, p.httpClient, p.apiBase+"/chat/completions", headers, body)
	if err != nil {
		return nil, err
	}
	return newLineStream(resp.Body, decodeSSELine), nil
}

// sseChunk is the payload of one data: frame.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// decodeSSELine handles one line of an event stream. Only data: lines carry
// content; event names, ids and comments are ignored.
func decodeSSELine(line []byte) (string, bool, error) {
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return "", false, nil
	}
	data = bytes.TrimSpace(data)
	if string(data) == "[DONE]" {
		return "", true, nil
	}
	if len(data) == 0 {
		return "", false, nil
	}

	var chunk sseChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, fmt.Errorf("decode stream event: %w", err)
	}
	if chunk.Error != nil {
		return "", false, errors.New(chunk.Error.Message)
	}

	var sb strings.Builder
	for _, c := range chunk.Choices {
		sb.WriteString(c.Delta.Content)
	}
	return sb.String(), false, nil
}
