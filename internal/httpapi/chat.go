package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crystaldolphin/toolstream/internal/agent"
)

const maxChatBody = 1 << 20

// TurnRunner runs one chat turn and streams its output.
type TurnRunner interface {
	RunTurn(ctx context.Context, sessionID, message string, out agent.ChunkWriter) error
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatHandler serves POST /chat. The reply is streamed as plain text and
// flushed after every chunk. A failed turn ends with one chunk starting with
// agent.ErrorMarker.
type ChatHandler struct {
	turns TurnRunner
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(turns TurnRunner) *ChatHandler {
	return &ChatHandler{turns: turns}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxChatBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id and message are required"})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	flush := func() error {
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}
	if err := flush(); err != nil {
		return
	}

	out := agent.ChunkWriterFunc(func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		return flush()
	})

	if err := h.turns.RunTurn(r.Context(), req.SessionID, req.Message, out); err != nil {
		slog.Debug("Chat turn ended with error", "session", req.SessionID, "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Write JSON response", "err", err)
	}
}
