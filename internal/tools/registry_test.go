package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// stubTool is a configurable schema.Tool for registry tests.
type stubTool struct {
	name   string
	schema string
	invoke func(ctx context.Context, args map[string]any) (schema.ToolResult, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) InputSchema() json.RawMessage {
	if s.schema == "" {
		return nil
	}
	return json.RawMessage(s.schema)
}
func (s *stubTool) Invoke(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
	return s.invoke(ctx, args)
}

func mustRegistry(t *testing.T, ts ...schema.Tool) *Registry {
	t.Helper()
	b := NewRegistryBuilder()
	for _, tool := range ts {
		b.WithTool(tool)
	}
	r, err := b.Build()
	require.NoError(t, err)
	return r
}

// ─── Build ───────────────────────────────────────────────────────────────────

func TestBuild_DuplicateName(t *testing.T) {
	_, err := NewRegistryBuilder().
		WithTool(NewEchoTool()).
		WithTool(&stubTool{name: "echo"}).
		Build()

	var dup *DuplicateToolNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "echo", dup.Name)
}

func TestBuild_InvalidSchema(t *testing.T) {
	_, err := NewRegistryBuilder().
		WithTool(&stubTool{name: "broken", schema: `{"type": 12}`}).
		Build()
	require.Error(t, err)
}

func TestList_RegistrationOrder(t *testing.T) {
	r := mustRegistry(t, NewEchoTool(), NewExtractTool(0), NewFetchTool(FetchOptions{}))

	names := []string{}
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"echo", "html_extract", "http_fetch"}, names)
	assert.Equal(t, names, func() []string {
		again := []string{}
		for _, d := range r.List() {
			again = append(again, d.Name)
		}
		return again
	}())
}

func TestList_DescriptorShape(t *testing.T) {
	r := mustRegistry(t, NewEchoTool())

	data, err := json.Marshal(r.List()[0])
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "echo", got["name"])
	assert.Contains(t, got, "description")
	inputSchema, ok := got["input_schema"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", inputSchema["type"])
}

// ─── Call ────────────────────────────────────────────────────────────────────

func TestCall_Echo(t *testing.T) {
	r := mustRegistry(t, NewEchoTool())

	res := r.Call(context.Background(), "echo", map[string]any{"text": "hi"})
	assert.Equal(t, `{"content":[{"type":"text","text":"hi"}]}`, res.String())
}

func TestCall_NotFound(t *testing.T) {
	r := mustRegistry(t, NewEchoTool())

	res := r.Call(context.Background(), "nope", nil)
	assert.True(t, res.IsError())
	assert.Equal(t, "Tool 'nope' not found", res.Error)

	_, err := r.Get("nope")
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestCall_InvalidArguments(t *testing.T) {
	r := mustRegistry(t, NewEchoTool())

	res := r.Call(context.Background(), "echo", map[string]any{"text": 42})
	assert.True(t, res.IsError())
	assert.Contains(t, res.Error, "invalid arguments for tool 'echo'")

	res = r.Call(context.Background(), "echo", nil)
	assert.True(t, res.IsError())
}

func TestCall_HandlerError(t *testing.T) {
	r := mustRegistry(t, &stubTool{
		name: "fails",
		invoke: func(context.Context, map[string]any) (schema.ToolResult, error) {
			return schema.ToolResult{}, errors.New("boom")
		},
	})

	res := r.Call(context.Background(), "fails", nil)
	assert.Equal(t, "boom", res.Error)
}

func TestCall_HandlerPanic(t *testing.T) {
	r := mustRegistry(t, &stubTool{
		name: "panics",
		invoke: func(context.Context, map[string]any) (schema.ToolResult, error) {
			panic("kaboom")
		},
	})

	res := r.Call(context.Background(), "panics", nil)
	assert.True(t, res.IsError())
	assert.Contains(t, res.Error, "kaboom")
}

func TestCall_DoesNotMutateRegistry(t *testing.T) {
	r := mustRegistry(t, NewEchoTool(), NewExtractTool(0))
	before := r.List()

	_ = r.Call(context.Background(), "echo", map[string]any{"text": "x"})
	_ = r.Call(context.Background(), "missing", nil)

	assert.Equal(t, before, r.List())
}
