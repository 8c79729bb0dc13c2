package tools

import (
	"context"
	"encoding/json"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// EchoTool returns its text argument unchanged.
type EchoTool struct{}

func NewEchoTool() *EchoTool { return &EchoTool{} }

func (t *EchoTool) Name() string        { return string(ToolEcho) }
func (t *EchoTool) Description() string { return "Echo text back to the caller" }
func (t *EchoTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string"}
		},
		"required": ["text"]
	}`)
}

func (t *EchoTool) Invoke(_ context.Context, args map[string]any) (schema.ToolResult, error) {
	text, _ := args["text"].(string)
	return schema.TextResult(text), nil
}
