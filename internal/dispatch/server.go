package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/toolstream/internal/tools"
)

// conn tracks one connected client. Writes are serialized per connection.
type conn struct {
	id     string
	ws     *websocket.Conn
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *conn) send(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Server answers dispatch requests over websocket connections.
//
// Each connection is served by its own goroutine and handles its requests
// in arrival order; connections never wait on each other.
type Server struct {
	registry *tools.Registry
	info     ServerInfo
	upgrader websocket.Upgrader

	connsMu sync.Mutex
	conns   map[string]*conn
	wg      sync.WaitGroup
}

// NewServer creates a Server routing tools.call to registry.
func NewServer(registry *tools.Registry, info ServerInfo) *Server {
	return &Server{
		registry: registry,
		info:     info,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("dispatch upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{id: uuid.NewString(), ws: ws, cancel: cancel}
	s.add(c)
	defer func() {
		s.remove(c.id)
		cancel()
		ws.Close()
	}()

	slog.Info("dispatch client connected", "conn", c.id, "remote", r.RemoteAddr)
	s.serveConn(ctx, c)
	slog.Info("dispatch client disconnected", "conn", c.id)
}

func (s *Server) serveConn(ctx context.Context, c *conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("dispatch read ended", "conn", c.id, "err", err)
			}
			return
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(data, &req); err != nil {
			resp = errorResponse(nil, fmt.Sprintf("Parse error: %v", err))
		} else {
			resp = s.Handle(ctx, req)
		}

		if err := c.send(resp); err != nil {
			slog.Warn("dispatch write failed", "conn", c.id, "err", err)
			return
		}
	}
}

// Handle routes one request. It never fails: problems are reported in the
// returned envelope.
func (s *Server) Handle(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodInitialize:
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      s.info,
			Capabilities:    Capabilities{Tools: true},
		})

	case MethodToolsList:
		return resultResponse(req.ID, ListToolsResult{Tools: s.registry.List()})

	case MethodToolsCall:
		var p CallToolParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return errorResponse(req.ID, fmt.Sprintf("Invalid params: %v", err))
			}
		}
		slog.Debug("tools.call", "tool", p.Name)
		return resultResponse(req.ID, s.registry.Call(ctx, p.Name, p.Arguments))

	default:
		return errorResponse(req.ID, fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// ToolCount returns the number of registered tools.
func (s *Server) ToolCount() int { return s.registry.Len() }

// Shutdown closes every open connection and waits for their goroutines to
// finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.connsMu.Lock()
	for _, c := range s.conns {
		c.cancel()
		// WriteControl may run concurrently with send.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), deadlineFrom(ctx))
		_ = c.ws.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) add(c *conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[c.id] = c
	s.wg.Add(1)
}

func (s *Server) remove(id string) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if _, ok := s.conns[id]; ok {
		delete(s.conns, id)
		s.wg.Done()
	}
}
