package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// OllamaProvider streams from Ollama's /api/chat endpoint.
type OllamaProvider struct {
	apiBase      string
	defaultModel string
	extraHeaders map[string]string
	httpClient   *http.Client
}

// NewOllamaProvider creates an OllamaProvider. apiBase is the server root,
// e.g. http://localhost:11434.
func NewOllamaProvider(apiBase, defaultModel string, extraHeaders map[string]string) *OllamaProvider {
	return &OllamaProvider{
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		extraHeaders: extraHeaders,
		httpClient:   &http.Client{},
	}
}

func (p *OllamaProvider) DefaultModel() string { return p.defaultModel }

// Stream implements schema.LLMProvider.
func (p *OllamaProvider) Stream(ctx context.Context, messages schema.Messages, opts schema.StreamOptions) (schema.TextStream, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	body := map[string]any{
		"model":    model,
		"messages": toWire(messages),
		"stream":   true,
		"options":  map[string]any{"temperature": opts.Temperature},
	}

	resp, err := postStream(ctx, p.httpClient, p.apiBase+"/api/chat", p.extraHeaders, body)
	if err != nil {
		return nil, err
	}
	return newLineStream(resp.Body, decodeOllamaLine), nil
}

// ollamaChunk is one NDJSON line of an Ollama chat stream.
type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func decodeOllamaLine(line []byte) (string, bool, error) {
	var chunk ollamaChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		return "", false, fmt.Errorf("decode stream line: %w", err)
	}
	if chunk.Error != "" {
		return "", false, errors.New(chunk.Error)
	}
	return chunk.Message.Content, chunk.Done, nil
}
