package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolstream/internal/dependency"
	"github.com/crystaldolphin/toolstream/internal/dispatch"
)

var toolArgs string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and call tools on a dispatch server",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tools offered by the dispatch server",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call NAME",
	Short: "Call one tool and print its result",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsCall,
}

func init() {
	toolsCallCmd.Flags().StringVarP(&toolArgs, "args", "a", "{}", "Tool arguments as a JSON object")

	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)
}

func dispatchClient() (*dispatch.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	container, err := dependency.New(cfg)
	if err != nil {
		return nil, err
	}
	return container.Client()
}

func runToolsList(_ *cobra.Command, _ []string) error {
	client, err := dispatchClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := client.Initialize(ctx)
	if err != nil {
		return err
	}
	descriptors, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s %s (protocol %s)\n\n", logo, info.ServerInfo.Name, info.ServerInfo.Version, info.ProtocolVersion)
	if len(descriptors) == 0 {
		fmt.Println("No tools.")
		return nil
	}
	for _, d := range descriptors {
		fmt.Printf("  %-24s %s\n", d.Name, d.Description)
	}
	return nil
}

func runToolsCall(_ *cobra.Command, args []string) error {
	var toolArguments map[string]any
	if err := json.Unmarshal([]byte(toolArgs), &toolArguments); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	client, err := dispatchClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := client.CallTool(ctx, args[0], toolArguments)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.IsError() {
		return fmt.Errorf("tool %s failed", args[0])
	}
	return nil
}
