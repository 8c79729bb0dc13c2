package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultPoolSize    = 4
)

// UnavailableError reports that the dispatch server could not be reached or
// did not answer in time.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tool dispatch unavailable (%s): %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is, or wraps, an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// ClientOptions configures Client.
type ClientOptions struct {
	// CallTimeout bounds a whole round trip, including dialing.
	CallTimeout time.Duration
	// PoolSize is the number of idle connections kept for reuse.
	PoolSize int
}

// Client performs request/response round trips against a dispatch server.
//
// Connections are taken from an idle pool or dialed on demand, so concurrent
// calls never share a connection. A connection that fails or times out is
// discarded instead of being returned to the pool.
type Client struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
	idle    chan *websocket.Conn
	nextID  atomic.Int64
	closed  atomic.Bool
}

// NewClient creates a Client for the websocket endpoint at url. No
// connection is opened until the first call.
func NewClient(url string, opts ClientOptions) *Client {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	return &Client{
		url:     url,
		timeout: opts.CallTimeout,
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.CallTimeout},
		idle:    make(chan *websocket.Conn, opts.PoolSize),
	}
}

// Initialize performs capability negotiation.
func (c *Client) Initialize(ctx context.Context) (InitializeResult, error) {
	var out InitializeResult
	raw, err := c.call(ctx, MethodInitialize, map[string]any{
		"clientInfo": ServerInfo{Name: "toolstream", Version: "0.1.0"},
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode initialize result: %w", err)
	}
	return out, nil
}

// ListTools returns the server's tool descriptors.
func (c *Client) ListTools(ctx context.Context) ([]schema.ToolDescriptor, error) {
	raw, err := c.call(ctx, MethodToolsList, nil)
	if err != nil {
		return nil, err
	}
	var out ListToolsResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode tools.list result: %w", err)
	}
	return out.Tools, nil
}

// CallTool invokes name with args and returns the tool's result. Tool-level
// failures arrive inside the result; the error is non-nil only when the
// round trip itself failed.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (schema.ToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := c.call(ctx, MethodToolsCall, CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return schema.ToolResult{}, err
	}
	var out schema.ToolResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return schema.ToolResult{}, fmt.Errorf("decode tools.call result: %w", err)
	}
	return out, nil
}

// Close drops every idle connection. Calls made afterwards fail.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	for {
		select {
		case ws := <-c.idle:
			_ = ws.Close()
		default:
			return nil
		}
	}
}

func (c *Client) nextRequestID() json.RawMessage {
	return json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10))
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, &UnavailableError{Op: method, Err: errors.New("client closed")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := Request{JSONRPC: Version, ID: c.nextRequestID(), Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = data
	}
	frame, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	ws, reused, err := c.acquire(ctx)
	if err != nil {
		return nil, &UnavailableError{Op: method, Err: err}
	}

	resp, err := roundTrip(ctx, ws, frame, req.ID)
	if err != nil && reused && ctx.Err() == nil && retryable(method, err) {
		// The pooled connection may have been closed by the server while idle.
		_ = ws.Close()
		if ws, err = c.dial(ctx); err != nil {
			return nil, &UnavailableError{Op: method, Err: err}
		}
		resp, err = roundTrip(ctx, ws, frame, req.ID)
	}
	if err != nil {
		_ = ws.Close()
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return nil, &UnavailableError{Op: method, Err: err}
	}
	c.release(ws)

	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// roundTrip writes frame and reads until the response carrying id arrives.
// Frames with other ids are left-overs from abandoned calls and are skipped.
// Cancelling ctx unblocks a pending read by expiring the read deadline.
func roundTrip(ctx context.Context, ws *websocket.Conn, frame []byte, id json.RawMessage) (Response, error) {
	_ = ws.SetWriteDeadline(deadlineFrom(ctx))
	stop := context.AfterFunc(ctx, func() {
		_ = ws.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return Response{}, &writeError{err: err}
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return Response{}, fmt.Errorf("read: %w", err)
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Debug("skipping undecodable dispatch frame", "err", err)
			continue
		}
		if !bytes.Equal(resp.ID, id) {
			continue
		}
		if !stop() {
			return Response{}, ctx.Err()
		}
		_ = ws.SetReadDeadline(time.Time{})
		_ = ws.SetWriteDeadline(time.Time{})
		return resp, nil
	}
}

// writeError marks a round trip that failed before the request left the
// client, so the server cannot have acted on it.
type writeError struct{ err error }

func (e *writeError) Error() string { return "write: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// retryable reports whether a failed round trip may be sent again on a fresh
// connection. tools.call is resent only if it was never written, since the
// server may already have run the tool.
func retryable(method string, err error) bool {
	if method != MethodToolsCall {
		return true
	}
	var we *writeError
	return errors.As(err, &we)
}

func (c *Client) acquire(ctx context.Context) (ws *websocket.Conn, reused bool, err error) {
	select {
	case ws := <-c.idle:
		return ws, true, nil
	default:
	}
	ws, err = c.dial(ctx)
	return ws, false, err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	return ws, nil
}

func (c *Client) release(ws *websocket.Conn) {
	if c.closed.Load() {
		_ = ws.Close()
		return
	}
	select {
	case c.idle <- ws:
	default:
		_ = ws.Close()
	}
}

func deadlineFrom(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(defaultCallTimeout)
}
