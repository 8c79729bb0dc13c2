package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/toolstream/internal/dependency"
	"github.com/crystaldolphin/toolstream/internal/httpapi"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the dispatch server and the chat backend in one process",
	RunE:  runGateway,
}

func runGateway(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	svc, err := container.Dispatch()
	if err != nil {
		return fmt.Errorf("build dispatch server: %w", err)
	}

	// The backend asks the dispatch server for its tools while it is built,
	// so the dispatch listener has to accept connections first.
	ln, err := net.Listen("tcp", cfg.Dispatch.Addr())
	if err != nil {
		return fmt.Errorf("dispatch: listen %s: %w", cfg.Dispatch.Addr(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpapi.Serve(gctx, "dispatch", ln, svc.Handler(), svc.Server().Shutdown)
	})

	backend, err := container.Backend()
	if err != nil {
		stop()
		_ = g.Wait()
		return fmt.Errorf("build chat backend: %w", err)
	}
	defer backend.Close()

	g.Go(func() error {
		return httpapi.Run(gctx, "chat", cfg.Server.Addr(), backend.Handler())
	})

	fmt.Printf("%s Gateway running: chat on %s, tools on %s. Press Ctrl+C to stop.\n",
		logo, cfg.Server.Addr(), ln.Addr())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
