package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolstream/internal/config"
	"github.com/crystaldolphin/toolstream/internal/providers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show toolstream configuration and server health",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	fmt.Printf("%s toolstream Status\n\n", logo)

	_, statErr := os.Stat(configPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", configPath, cfgMark)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  ✗ %v\n", err)
	}

	provider := cfg.LLM.Provider
	if spec := providers.FindByName(provider); spec != nil {
		provider = spec.Label()
	}
	apiBase := cfg.LLM.APIBase
	if apiBase == "" {
		apiBase = "(default)"
	}
	fmt.Printf("Provider:  %s %s\n", provider, apiBase)
	fmt.Printf("Model:     %s\n\n", cfg.LLM.Model)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	fmt.Println("Servers:")
	printHealth(ctx, "chat", "http://"+localAddr(cfg.Server.Addr())+"/health")
	printHealth(ctx, "dispatch", healthURL(cfg.Dispatch.URL))
	return nil
}

func printHealth(ctx context.Context, name, target string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		fmt.Printf("  %-10s ✗ %v\n", name, err)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("  %-10s ✗ %s (not reachable)\n", name, target)
		return
	}
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("  %-10s ✗ %s (HTTP %d)\n", name, target, resp.StatusCode)
		return
	}
	extra := ""
	if tools, ok := body["tools"]; ok {
		extra = fmt.Sprintf(" tools=%v connections=%v", tools, body["connections"])
	}
	fmt.Printf("  %-10s ✓ %s%s\n", name, target, extra)
}

// localAddr swaps a wildcard listen host for localhost.
func localAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// healthURL maps a ws(s)://host/mcp dispatch URL to its http(s)://host/health.
func healthURL(dispatchURL string) string {
	u, err := url.Parse(dispatchURL)
	if err != nil {
		return dispatchURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = "/health"
	u.RawQuery = ""
	return u.String()
}
