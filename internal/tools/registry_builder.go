package tools

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// DuplicateToolNameError reports two tools registered under one name.
type DuplicateToolNameError struct {
	Name string
}

func (e *DuplicateToolNameError) Error() string {
	return fmt.Sprintf("duplicate tool name %q", e.Name)
}

// RegistryBuilder accumulates tools during the construction phase.
// Call Build() to produce an immutable Registry ready for use.
type RegistryBuilder struct {
	tools []schema.Tool
}

// NewRegistryBuilder returns a fresh RegistryBuilder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{}
}

// WithTool adds a tool and returns the builder, enabling chaining.
func (b *RegistryBuilder) WithTool(tool schema.Tool) *RegistryBuilder {
	b.tools = append(b.tools, tool)

	return b
}

// Build produces an immutable Registry from the accumulated tools.
// It fails on a duplicate or empty name and on an input schema that does
// not compile.
func (b *RegistryBuilder) Build() (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]schema.Tool, len(b.tools)),
		schemas: make(map[string]*gojsonschema.Schema, len(b.tools)),
		order:   make([]string, 0, len(b.tools)),
	}
	for _, t := range b.tools {
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool %T has an empty name", t)
		}
		if _, dup := r.tools[name]; dup {
			return nil, &DuplicateToolNameError{Name: name}
		}
		if raw := t.InputSchema(); len(raw) > 0 {
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				return nil, fmt.Errorf("compile input schema for %q: %w", name, err)
			}
			r.schemas[name] = s
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}
