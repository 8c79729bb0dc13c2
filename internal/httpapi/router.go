// Package httpapi exposes the chat backend and the dispatch server over HTTP.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DispatchStatus reports live state of a dispatch server for /health.
type DispatchStatus interface {
	Connections() int
	ToolCount() int
}

func newRouter(corsOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(corsOptions(corsOrigins)))
	}
	r.Use(requestLogger)
	return r
}

func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(origins) == 1 && origins[0] == "*" {
		opts.AllowCredentials = false
	}
	return opts
}

// NewChatRouter routes POST /chat and GET /health.
func NewChatRouter(chat *ChatHandler, corsOrigins []string) http.Handler {
	r := newRouter(corsOrigins)
	r.Method(http.MethodPost, "/chat", chat)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// NewDispatchRouter routes the websocket endpoint at /mcp and GET /health.
func NewDispatchRouter(ws http.Handler, status DispatchStatus) http.Handler {
	r := newRouter(nil)
	r.Handle("/mcp", ws)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"tools":       status.ToolCount(),
			"connections": status.Connections(),
		})
	})
	return r
}
