// Package cmd implements the toolstream CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolstream/internal/config"
	"github.com/crystaldolphin/toolstream/internal/logging"
)

const version = "0.1.0"
const logo = "🐬"

var (
	configPath  string
	closeLogger = func() error { return nil }
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "toolstream",
	Short: logo + " toolstream: streaming chat with tool calls",
	Long: logo + " toolstream relays model replies to the caller while watching for\n" +
		"fenced JSON tool calls, which it runs on a WebSocket tool server.",
	SilenceUsage: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	err := rootCmd.Execute()
	_ = closeLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.ConfigPath(), "Config file (.json, .yaml or .yml)")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadConfig reads the config file and sets up the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, err
	}
	closeLogger = closer
	return cfg, nil
}
