package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolstream/internal/dependency"
	"github.com/crystaldolphin/toolstream/internal/httpapi"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat backend",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	backend, err := container.Backend()
	if err != nil {
		return fmt.Errorf("build chat backend: %w", err)
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("%s Chat backend on %s (tools at %s). Press Ctrl+C to stop.\n", logo, cfg.Server.Addr(), cfg.Dispatch.URL)
	return httpapi.Run(ctx, "chat", cfg.Server.Addr(), backend.Handler())
}
