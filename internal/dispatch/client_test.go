package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CallTool(t *testing.T) {
	_, url := newTestServer(t)
	c := NewClient(url, ClientOptions{CallTimeout: 5 * time.Second})
	defer c.Close()

	res, err := c.CallTool(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, `{"content":[{"type":"text","text":"hi"}]}`, res.String())
}

func TestClient_ToolErrorIsResult(t *testing.T) {
	_, url := newTestServer(t)
	c := NewClient(url, ClientOptions{})
	defer c.Close()

	res, err := c.CallTool(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, "Tool 'missing' not found", res.Error)
}

func TestClient_InitializeAndList(t *testing.T) {
	_, url := newTestServer(t)
	c := NewClient(url, ClientOptions{})
	defer c.Close()

	info, err := c.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", info.ServerInfo.Version)

	descs, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "echo", descs[0].Name)
}

func TestClient_ReusesPooledConnection(t *testing.T) {
	srv, url := newTestServer(t)
	c := NewClient(url, ClientOptions{PoolSize: 1})
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.CallTool(context.Background(), "echo", map[string]any{"text": "x"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, srv.Connections())
}

func TestClient_UnreachableServer(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/mcp", ClientOptions{CallTimeout: time.Second})
	defer c.Close()

	_, err := c.CallTool(context.Background(), "echo", map[string]any{"text": "x"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestClient_TimeoutIsUnavailable(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	c := NewClient("ws"+strings.TrimPrefix(ts.URL, "http"), ClientOptions{CallTimeout: 200 * time.Millisecond})
	defer c.Close()

	start := time.Now()
	_, err := c.CallTool(context.Background(), "echo", nil)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_ProtocolErrorIsNotUnavailable(t *testing.T) {
	_, url := newTestServer(t)
	c := NewClient(url, ClientOptions{})
	defer c.Close()

	_, err := c.call(context.Background(), "bogus", nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "Unknown method: bogus", rpcErr.Message)
	assert.False(t, IsUnavailable(err))
}

func TestClient_ClosedClient(t *testing.T) {
	_, url := newTestServer(t)
	c := NewClient(url, ClientOptions{})
	require.NoError(t, c.Close())

	_, err := c.ListTools(context.Background())
	assert.True(t, IsUnavailable(err))
}

// droppingServer answers initialize and tools.list, but closes the connection
// on tools.call without replying. It counts the tools.call frames it receives.
func droppingServer(t *testing.T, calls *atomic.Int32) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var req Request
			if !assert.NoError(t, json.Unmarshal(data, &req)) {
				return
			}
			if req.Method == MethodToolsCall {
				calls.Add(1)
				return
			}
			var result any = InitializeResult{ProtocolVersion: ProtocolVersion}
			if req.Method == MethodToolsList {
				result = ListToolsResult{}
			}
			if err := ws.WriteJSON(resultResponse(req.ID, result)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestClient_ToolCallNotResentAfterDelivery(t *testing.T) {
	var calls atomic.Int32
	c := NewClient(droppingServer(t, &calls), ClientOptions{CallTimeout: 2 * time.Second, PoolSize: 1})
	defer c.Close()

	_, err := c.Initialize(context.Background())
	require.NoError(t, err)

	_, err = c.CallTool(context.Background(), "echo", map[string]any{"text": "x"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_IdempotentCallRetriedOnStaleConnection(t *testing.T) {
	srv, url := newTestServer(t)
	c := NewClient(url, ClientOptions{CallTimeout: 2 * time.Second, PoolSize: 1})
	defer c.Close()

	_, err := c.Initialize(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 10*time.Millisecond)

	// Closing every server-side connection leaves the pooled one stale.
	require.NoError(t, srv.Shutdown(context.Background()))

	descs, err := c.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, descs, 1)
}

func TestRetryable(t *testing.T) {
	readErr := errors.New("read: EOF")
	assert.True(t, retryable(MethodInitialize, readErr))
	assert.True(t, retryable(MethodToolsList, readErr))
	assert.False(t, retryable(MethodToolsCall, readErr))
	assert.True(t, retryable(MethodToolsCall, &writeError{err: errors.New("broken pipe")}))
}
