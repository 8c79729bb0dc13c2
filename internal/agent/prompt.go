package agent

import (
	"fmt"
	"strings"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// DefaultSystemPrompt is used when no prompt is configured.
const DefaultSystemPrompt = `You are a helpful assistant. Answer clearly and concisely.
When you do not know something, say so instead of guessing.`

// BuildSystemPrompt appends a section describing tools and the invocation
// convention to base. With no tools, base is returned unchanged.
func BuildSystemPrompt(base string, tools []schema.ToolDescriptor) string {
	if len(tools) == 0 {
		return base
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimRight(base, "\n"))
	sb.WriteString("\n\n# Tools\n\n")
	sb.WriteString("You can call one tool per reply. To call a tool, reply with nothing but a fenced JSON block:\n\n")
	sb.WriteString("```json\n{\"tool\": \"<name>\", \"arguments\": {...}}\n```\n\n")
	sb.WriteString("The result is sent back to you as a tool message; then answer the user in plain language.\n")
	sb.WriteString("Do not mention the JSON format to the user.\n\n")
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "\n## %s\n%s\n", t.Name, strings.TrimSpace(t.Description))
		if len(t.InputSchema) > 0 {
			fmt.Fprintf(&sb, "Arguments schema: %s\n", t.InputSchema)
		}
	}
	return sb.String()
}
