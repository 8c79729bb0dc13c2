package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolstream/internal/shared/cmdutils"
	"github.com/crystaldolphin/toolstream/internal/shared/llmutils"
)

var (
	chatMessage string
	chatSession string
	chatURL     string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running backend",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "Session ID (random when empty)")
	chatCmd.Flags().StringVar(&chatURL, "url", "http://localhost:8000", "Chat backend base URL")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runChat(_ *cobra.Command, _ []string) error {
	sessionID := llmutils.StringOrDefault(chatSession, uuid.NewString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if chatMessage != "" {
		return sendChat(ctx, http.DefaultClient, chatURL, sessionID, chatMessage, os.Stdout)
	}
	return runInteractive(ctx, sessionID)
}

// runInteractive reads lines from stdin and streams each reply before
// prompting again.
func runInteractive(ctx context.Context, sessionID string) error {
	fmt.Printf("%s Interactive mode, session %s (type 'exit' or Ctrl+C to quit)\n\n", logo, sessionID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("You: ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Println("\nGoodbye!")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		if err := sendChat(ctx, http.DefaultClient, chatURL, sessionID, line, os.Stdout); err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// sendChat posts one message to baseURL/chat and streams the reply to w.
func sendChat(ctx context.Context, client *http.Client, baseURL, sessionID, message string, w io.Writer) error {
	body, err := json.Marshal(map[string]string{"session_id": sessionID, "message": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("chat: %s (HTTP %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("chat: HTTP %d: %s", resp.StatusCode, llmutils.Truncate(strings.TrimSpace(string(raw)), 200))
	}

	_, err = cmdutils.StreamResponse(w, resp.Body)
	return err
}
