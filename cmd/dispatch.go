package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolstream/internal/dependency"
	"github.com/crystaldolphin/toolstream/internal/httpapi"
	"github.com/crystaldolphin/toolstream/internal/schema"
)

var dispatchPort int

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Start the WebSocket tool dispatch server",
	RunE:  runDispatch,
}

func init() {
	dispatchCmd.Flags().IntVarP(&dispatchPort, "port", "p", 0, "Listen port (overrides dispatch.port)")
}

func runDispatch(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dispatchPort > 0 {
		cfg.Dispatch.Port = dispatchPort
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	svc, err := container.Dispatch()
	if err != nil {
		return fmt.Errorf("build dispatch server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("%s Dispatch server on ws://%s/mcp with tools: %s\n",
		logo, cfg.Dispatch.Addr(), strings.Join(toolNames(svc.Registry().List()), ", "))
	return httpapi.Run(ctx, "dispatch", cfg.Dispatch.Addr(), svc.Handler(), svc.Server().Shutdown)
}

func toolNames(descriptors []schema.ToolDescriptor) []string {
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name
	}
	return names
}
