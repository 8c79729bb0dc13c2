package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourcegraph/conc/panics"
	"github.com/xeipuuv/gojsonschema"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// ToolName is the canonical name of a built-in tool.
type ToolName string

const (
	ToolEcho        ToolName = "echo"
	ToolSearch      ToolName = "duckduckgo_full_search"
	ToolHTTPFetch   ToolName = "http_fetch"
	ToolHTMLExtract ToolName = "html_extract"
)

// ErrToolNotFound is returned by Get for unregistered names.
var ErrToolNotFound = errors.New("tool not found")

// Registry holds the tools loaded at startup. It is never mutated after
// Build, so concurrent readers need no locking.
type Registry struct {
	tools   map[string]schema.Tool
	schemas map[string]*gojsonschema.Schema
	order   []string
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (schema.Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// List returns every descriptor in registration order.
func (r *Registry) List() []schema.ToolDescriptor {
	out := make([]schema.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, schema.DescriptorOf(r.tools[name]))
	}
	return out
}

// Call validates args against the tool's input schema and invokes it.
// Every failure, including a handler panic, is folded into the returned
// result so the caller can hand it back to the model.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) schema.ToolResult {
	t, err := r.Get(name)
	if err != nil {
		slog.Warn("tool call for unregistered tool", "tool", name)
		return schema.ErrorResult(fmt.Sprintf("Tool '%s' not found", name))
	}
	if args == nil {
		args = map[string]any{}
	}

	if err := r.validate(name, args); err != nil {
		slog.Warn("tool arguments rejected", "tool", name, "err", err)
		return schema.ErrorResult(err.Error())
	}

	var (
		result  schema.ToolResult
		callErr error
		pc      panics.Catcher
	)
	pc.Try(func() {
		result, callErr = t.Invoke(ctx, args)
	})
	if rec := pc.Recovered(); rec != nil {
		slog.Error("tool panicked", "tool", name, "panic", rec.Value)
		return schema.ErrorResult(fmt.Sprintf("tool '%s' panicked: %v", name, rec.Value))
	}
	if callErr != nil {
		slog.Warn("tool failed", "tool", name, "err", callErr)
		return schema.ErrorResult(callErr.Error())
	}
	return result
}

func (r *Registry) validate(name string, args map[string]any) error {
	s := r.schemas[name]
	if s == nil {
		return nil
	}
	res, err := s.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("invalid arguments for tool '%s': %w", name, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid arguments for tool '%s': %s", name, strings.Join(msgs, "; "))
}
