package dispatch

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/toolstream/internal/schema"
	"github.com/crystaldolphin/toolstream/internal/tools"
)

// blockingTool waits on release before answering.
type blockingTool struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTool) Name() string                 { return "block" }
func (b *blockingTool) Description() string          { return "blocks until released" }
func (b *blockingTool) InputSchema() json.RawMessage { return nil }
func (b *blockingTool) Invoke(ctx context.Context, _ map[string]any) (schema.ToolResult, error) {
	close(b.started)
	select {
	case <-b.release:
		return schema.TextResult("released"), nil
	case <-ctx.Done():
		return schema.ToolResult{}, ctx.Err()
	}
}

func newTestServer(t *testing.T, extra ...schema.Tool) (*Server, string) {
	t.Helper()
	b := tools.NewRegistryBuilder().WithTool(tools.NewEchoTool())
	for _, tool := range extra {
		b.WithTool(tool)
	}
	reg, err := b.Build()
	require.NoError(t, err)

	srv := NewServer(reg, ServerInfo{Name: "websocket-mcp-server", Version: "0.1.0"})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialRaw(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func exchange(t *testing.T, ws *websocket.Conn, frame string) Response {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

// ─── Handle ──────────────────────────────────────────────────────────────────

func TestServer_Initialize(t *testing.T) {
	_, url := newTestServer(t)
	ws := dialRaw(t, url)

	resp := exchange(t, ws, `{"jsonrpc":"2.0","id":"abc","method":"initialize","params":{}}`)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"abc"`, string(resp.ID))

	var res InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.Equal(t, "websocket-mcp-server", res.ServerInfo.Name)
	assert.True(t, res.Capabilities.Tools)
}

func TestServer_UnknownMethodKeepsConnection(t *testing.T) {
	_, url := newTestServer(t)
	ws := dialRaw(t, url)

	resp := exchange(t, ws, `{"jsonrpc":"2.0","id":1,"method":"tools.delete"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Unknown method: tools.delete", resp.Error.Message)
	assert.JSONEq(t, `1`, string(resp.ID))

	resp = exchange(t, ws, `{"jsonrpc":"2.0","id":2,"method":"tools.list"}`)
	assert.Nil(t, resp.Error)
}

func TestServer_ParseErrorKeepsConnection(t *testing.T) {
	_, url := newTestServer(t)
	ws := dialRaw(t, url)

	resp := exchange(t, ws, `{not json`)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "Parse error")
	assert.Equal(t, "null", string(resp.ID))

	resp = exchange(t, ws, `{"jsonrpc":"2.0","id":3,"method":"initialize"}`)
	assert.Nil(t, resp.Error)
}

func TestServer_CallUnknownToolIsResult(t *testing.T) {
	_, url := newTestServer(t)
	ws := dialRaw(t, url)

	resp := exchange(t, ws, `{"jsonrpc":"2.0","id":4,"method":"tools.call","params":{"name":"nope","arguments":{}}}`)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"error":"Tool 'nope' not found"}`, string(resp.Result))
}

func TestServer_ListStableAcrossCalls(t *testing.T) {
	_, url := newTestServer(t)
	ws := dialRaw(t, url)

	before := exchange(t, ws, `{"jsonrpc":"2.0","id":1,"method":"tools.list"}`)
	call := exchange(t, ws, `{"jsonrpc":"2.0","id":2,"method":"tools.call","params":{"name":"echo","arguments":{"text":"hi"}}}`)
	after := exchange(t, ws, `{"jsonrpc":"2.0","id":3,"method":"tools.list"}`)

	assert.JSONEq(t, `{"content":[{"type":"text","text":"hi"}]}`, string(call.Result))
	assert.JSONEq(t, string(before.Result), string(after.Result))
}

// ─── Concurrency ─────────────────────────────────────────────────────────────

func TestServer_ConnectionsDoNotBlockEachOther(t *testing.T) {
	bt := &blockingTool{started: make(chan struct{}), release: make(chan struct{})}
	_, url := newTestServer(t, bt)
	slow := dialRaw(t, url)
	fast := dialRaw(t, url)

	require.NoError(t, slow.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"tools.call","params":{"name":"block"}}`)))
	select {
	case <-bt.started:
	case <-time.After(5 * time.Second):
		t.Fatal("blocking tool never started")
	}

	resp := exchange(t, fast, `{"jsonrpc":"2.0","id":1,"method":"tools.call","params":{"name":"echo","arguments":{"text":"quick"}}}`)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"quick"}]}`, string(resp.Result))

	close(bt.release)
	require.NoError(t, slow.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := slow.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "released")
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	srv, url := newTestServer(t)
	ws := dialRaw(t, url)
	_ = exchange(t, ws, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.Equal(t, 1, srv.Connections())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Equal(t, 0, srv.Connections())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
}

func TestServer_ShutdownNotBlockedByPendingWrite(t *testing.T) {
	srv, url := newTestServer(t)
	ws := dialRaw(t, url)
	_ = exchange(t, ws, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)

	// Hold the write lock as a send stuck on a slow client would.
	srv.connsMu.Lock()
	var held *conn
	for _, c := range srv.conns {
		held = c
	}
	srv.connsMu.Unlock()
	require.NotNil(t, held)
	held.mu.Lock()
	defer held.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Equal(t, 0, srv.Connections())
}
