package schema

import "encoding/json"

const (
	BlockText = "text"
	BlockJSON = "json"
)

// ContentBlock is one typed payload block of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	JSON any    `json:"json,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// JSONBlock returns a structured content block.
func JSONBlock(v any) ContentBlock {
	return ContentBlock{Type: BlockJSON, JSON: v}
}

// ToolResult is either a sequence of content blocks or an error text.
type ToolResult struct {
	Content []ContentBlock `json:"content,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// TextResult wraps text in a single-block result.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []ContentBlock{TextBlock(text)}}
}

// JSONResult wraps v in a single-block result.
func JSONResult(v any) ToolResult {
	return ToolResult{Content: []ContentBlock{JSONBlock(v)}}
}

// ErrorResult returns a result carrying msg as its error.
func ErrorResult(msg string) ToolResult {
	return ToolResult{Error: msg}
}

// IsError reports whether the result carries an error.
func (r ToolResult) IsError() bool { return r.Error != "" }

// String renders the result as JSON, the form stored in tool-role messages.
func (r ToolResult) String() string {
	if r.Error == "" && r.Content == nil {
		r.Content = []ContentBlock{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(ToolResult{Error: err.Error()})
	}
	return string(data)
}
