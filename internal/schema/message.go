// Package schema holds the value types shared by the chat backend and the
// tool dispatch server: conversation messages, tool descriptors and results.
package schema

// Role tags a message with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the conversation history.
//
// Content is always plain text; tool-role messages carry the JSON encoding
// of a ToolResult.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func NewToolMessage(result ToolResult) Message {
	return Message{Role: RoleTool, Content: result.String()}
}
