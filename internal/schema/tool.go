package schema

import (
	"context"
	"encoding/json"
)

// Tool is the interface every dispatchable tool must satisfy.
type Tool interface {
	Name() string
	Description() string
	// InputSchema returns the JSON Schema (as raw JSON bytes) for the tool's arguments.
	InputSchema() json.RawMessage
	Invoke(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ToolDescriptor is the external shape of a registered tool.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// DescriptorOf builds the descriptor advertised for t.
func DescriptorOf(t Tool) ToolDescriptor {
	return ToolDescriptor{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
	}
}

// Invocation is a tool call extracted from model output.
type Invocation struct {
	Name      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}
