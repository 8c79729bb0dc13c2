package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Run serves handler on addr until ctx is done, then shuts the server down.
// beforeShutdown hooks run first; hijacked connections such as websockets
// are not closed by http.Server.Shutdown and must be closed there.
func Run(ctx context.Context, name, addr string, handler http.Handler, beforeShutdown ...func(context.Context) error) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", name, addr, err)
	}
	return Serve(ctx, name, ln, handler, beforeShutdown...)
}

// Serve is Run on an existing listener.
func Serve(ctx context.Context, name string, ln net.Listener, handler http.Handler, beforeShutdown ...func(context.Context) error) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "name", name, "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("%s: %w", name, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("Stopping HTTP server", "name", name)
	for _, hook := range beforeShutdown {
		if err := hook(shutdownCtx); err != nil {
			slog.Warn("Shutdown hook failed", "name", name, "err", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}
