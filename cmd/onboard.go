package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolstream/internal/config"
)

var onboardForce bool

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write a default configuration file",
	Long: "Write the configuration file named by --config. An existing file is\n" +
		"rewritten with its values kept and new settings filled in; --force resets it.",
	RunE: runOnboard,
}

func init() {
	onboardCmd.Flags().BoolVarP(&onboardForce, "force", "f", false, "Replace an existing config with defaults")
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfg := config.DefaultConfig()
	verb := "Created"

	if _, err := os.Stat(configPath); err == nil && !onboardForce {
		existing, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg, verb = *existing, "Refreshed"
	} else if err == nil {
		verb = "Reset"
	}

	if err := config.Save(&cfg, configPath); err != nil {
		return err
	}
	fmt.Printf("✓ %s config at %s\n", verb, configPath)
	fmt.Printf("  chat backend   http://%s\n", localAddr(cfg.Server.Addr()))
	fmt.Printf("  tool dispatch  %s\n", cfg.Dispatch.URL)
	fmt.Printf("  model          %s via %s\n", cfg.LLM.Model, cfg.LLM.Provider)

	fmt.Printf("\n%s toolstream is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Point llm.provider and llm.apiBase at your model server\n")
	fmt.Printf("     (or set %s / %s)\n", config.EnvLLMAPIBase, config.EnvLLMAPIKey)
	fmt.Println("  2. Start both servers: toolstream gateway")
	fmt.Println("  3. Chat: toolstream chat -m \"Hello!\"")
	return nil
}
