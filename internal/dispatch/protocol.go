// Package dispatch implements the tool dispatch protocol: a JSON-RPC style
// request/response envelope carried over a websocket, the server that routes
// requests to the tool registry, and a pooled client used by the chat backend.
package dispatch

import (
	"encoding/json"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// Version is the envelope version carried in every frame.
const Version = "2.0"

// ProtocolVersion is reported by initialize.
const ProtocolVersion = "2025-01-01"

const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools.list"
	MethodToolsCall  = "tools.call"
)

// Request is one client frame. ID is echoed verbatim in the response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response carries either Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a protocol-level failure such as an unknown method.
type RPCError struct {
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return "dispatch error: " + e.Message }

// ServerInfo identifies a dispatch server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities lists what a dispatch server supports.
type Capabilities struct {
	Tools bool `json:"tools"`
}

// InitializeResult is the payload of initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ListToolsResult is the payload of tools.list.
type ListToolsResult struct {
	Tools []schema.ToolDescriptor `json:"tools"`
}

// CallToolParams are the parameters of tools.call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func resultResponse(id json.RawMessage, v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(id, "encode result: "+err.Error())
	}
	return Response{JSONRPC: Version, ID: id, Result: data}
}

func errorResponse(id json.RawMessage, msg string) Response {
	return Response{JSONRPC: Version, ID: id, Error: &RPCError{Message: msg}}
}
